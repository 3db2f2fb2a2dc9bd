package auth

import "github.com/jrsteele09/campus-auth/sessions"

// Verdict is a guard's answer for a protected destination.
type Verdict int

const (
	// Wait means the store is still loading; decide again on the next change.
	Wait Verdict = iota
	Allow
	Redirect
)

func (v Verdict) String() string {
	switch v {
	case Wait:
		return "wait"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decision is a verdict plus, for Redirect, where to go.
type Decision struct {
	Verdict     Verdict
	Destination Destination
}

// RequireUser allows any signed in user and sends everyone else to login.
func RequireUser(st sessions.State) Decision {
	switch {
	case st.IsLoading:
		return Decision{Verdict: Wait}
	case st.User == nil:
		return Decision{Verdict: Redirect, Destination: DestinationLogin}
	}
	return Decision{Verdict: Allow}
}

// RequireAdmin allows administrators and sends everyone else to the admin login.
func RequireAdmin(st sessions.State) Decision {
	switch {
	case st.IsLoading:
		return Decision{Verdict: Wait}
	case st.User == nil, !st.IsAdmin:
		return Decision{Verdict: Redirect, Destination: DestinationAdminLogin}
	}
	return Decision{Verdict: Allow}
}

// AdminLogin decides the admin login page: an administrator who is already
// signed in goes straight to the dashboard.
func AdminLogin(st sessions.State) Decision {
	if !st.IsLoading && st.User != nil && st.IsAdmin {
		return Decision{Verdict: Redirect, Destination: DestinationAdminDashboard}
	}
	return Decision{Verdict: Allow}
}
