package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/campus-auth/artifacts"
	"github.com/jrsteele09/campus-auth/backend"
	"github.com/jrsteele09/campus-auth/internal/metrics"
	"github.com/jrsteele09/campus-auth/profiles"
	"github.com/jrsteele09/campus-auth/roles"
	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LoginState is the position of a login attempt in its state machine.
type LoginState string

const (
	StateIdle             LoginState = "idle"
	StateSubmitting       LoginState = "submitting"
	StateSuccess          LoginState = "success"
	StateEmailUnconfirmed LoginState = "email_unconfirmed"
	StateAccessDenied     LoginState = "access_denied"
	StateFailed           LoginState = "failed"
)

// Terminal reports whether no further transition follows s within an attempt.
func (s LoginState) Terminal() bool {
	switch s {
	case StateSuccess, StateEmailUnconfirmed, StateAccessDenied, StateFailed:
		return true
	}
	return false
}

// Destination is where the application goes after an auth operation.
type Destination string

const (
	DestinationHome           Destination = "/"
	DestinationLogin          Destination = "/login"
	DestinationAdminLogin     Destination = "/admin/login"
	DestinationAdminDashboard Destination = "/admin/dashboard"
)

// Navigator moves the application to a destination. Navigation is a full
// reload: whatever runs next bootstraps its session from the backend again.
type Navigator interface {
	Navigate(ctx context.Context, destination Destination) error
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func(ctx context.Context, destination Destination) error

func (f NavigatorFunc) Navigate(ctx context.Context, destination Destination) error {
	return f(ctx, destination)
}

// AdminUnconfirmedPolicy decides what an admin login with an unconfirmed email does.
type AdminUnconfirmedPolicy string

const (
	// PolicyReject fails the attempt like any other unconfirmed account.
	PolicyReject AdminUnconfirmedPolicy = "reject"
	// PolicyBypass reports success and sends the caller to the admin dashboard
	// without a session. The dashboard's own guard then bounces it.
	PolicyBypass AdminUnconfirmedPolicy = "bypass"
)

// ParseAdminUnconfirmedPolicy maps a configuration value to a policy.
func ParseAdminUnconfirmedPolicy(value string) (AdminUnconfirmedPolicy, error) {
	switch AdminUnconfirmedPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case PolicyReject, "":
		return PolicyReject, nil
	case PolicyBypass:
		return PolicyBypass, nil
	}
	return "", errors.Errorf("[ParseAdminUnconfirmedPolicy] unknown policy %q", value)
}

const defaultSettleTimeout = 5 * time.Second

// Credentials are the login form fields.
type Credentials struct {
	Email          string
	Password       string
	IsAdminAttempt bool
}

// SignUpRequest are the registration form fields.
type SignUpRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      users.RoleType // Defaults to student
}

// Outcome is the final result of an attempt, ready to present.
type Outcome struct {
	State       LoginState
	Destination Destination // Set on Success
	Title       string
	Description string
	User        *users.User // The signed in or registered user, if any
	Bypassed    bool        // Admin success granted without a session
	Err         error       // Wraps one of the Err kinds unless State is Success
}

// LoginController runs the login and registration flows against the auth backend.
type LoginController struct {
	backend       backend.AuthBackend
	store         *sessions.Store
	roleCheck     *roles.ProfileResolver
	adminEmail    string
	stores        []artifacts.Store
	navigator     Navigator
	policy        AdminUnconfirmedPolicy
	settleTimeout time.Duration
	metrics       metrics.Recorder

	attempt sync.Mutex // one attempt at a time
	lock    sync.RWMutex
	state   LoginState
}

// LoginControllerOption configures a LoginController.
type LoginControllerOption func(*LoginController)

// WithArtifactStores sets the client side stores cleaned before every attempt.
func WithArtifactStores(stores ...artifacts.Store) LoginControllerOption {
	return func(lc *LoginController) {
		lc.stores = stores
	}
}

// WithNavigator sets the navigator invoked after a successful login.
func WithNavigator(navigator Navigator) LoginControllerOption {
	return func(lc *LoginController) {
		lc.navigator = navigator
	}
}

// WithUnconfirmedPolicy sets the admin unconfirmed email policy.
func WithUnconfirmedPolicy(policy AdminUnconfirmedPolicy) LoginControllerOption {
	return func(lc *LoginController) {
		lc.policy = policy
	}
}

// WithSettleTimeout bounds the wait for the session store before navigating.
func WithSettleTimeout(timeout time.Duration) LoginControllerOption {
	return func(lc *LoginController) {
		lc.settleTimeout = timeout
	}
}

// WithLoginMetrics sets the metrics recorder.
func WithLoginMetrics(recorder metrics.Recorder) LoginControllerOption {
	return func(lc *LoginController) {
		lc.metrics = recorder
	}
}

// NewLoginController validates its dependencies. The profile repo backs the
// admin login role check, which never uses the email strategy.
func NewLoginController(
	authBackend backend.AuthBackend,
	store *sessions.Store,
	profileRepo profiles.Repo,
	adminEmail string,
	options ...LoginControllerOption,
) (*LoginController, error) {
	if authBackend == nil {
		return nil, errors.New("[NewLoginController] auth backend is required")
	}
	if store == nil {
		return nil, errors.New("[NewLoginController] session store is required")
	}
	if strings.TrimSpace(adminEmail) == "" {
		return nil, errors.New("[NewLoginController] admin email is required")
	}
	roleCheck, err := roles.NewProfileResolver(profileRepo)
	if err != nil {
		return nil, errors.Wrap(err, "[NewLoginController] NewProfileResolver")
	}

	lc := &LoginController{
		backend:       authBackend,
		store:         store,
		roleCheck:     roleCheck,
		adminEmail:    adminEmail,
		policy:        PolicyReject,
		settleTimeout: defaultSettleTimeout,
		metrics:       metrics.Nop{},
		state:         StateIdle,
	}
	for _, opt := range options {
		opt(lc)
	}
	if _, err := ParseAdminUnconfirmedPolicy(string(lc.policy)); err != nil {
		return nil, errors.Wrap(err, "[NewLoginController] invalid unconfirmed policy")
	}
	return lc, nil
}

// State returns the state of the current or most recent attempt.
func (lc *LoginController) State() LoginState {
	lc.lock.RLock()
	defer lc.lock.RUnlock()
	return lc.state
}

func (lc *LoginController) setState(state LoginState) {
	lc.lock.Lock()
	lc.state = state
	lc.lock.Unlock()
}

// Login runs one login attempt to completion. Every failure is reported in the
// returned Outcome.
func (lc *LoginController) Login(ctx context.Context, creds Credentials) Outcome {
	lc.attempt.Lock()
	defer lc.attempt.Unlock()

	lc.setState(StateSubmitting)
	outcome := lc.login(ctx, creds)
	lc.setState(outcome.State)
	lc.metrics.RecordLoginOutcome(string(outcome.State))

	if outcome.Err != nil {
		log.Debug().Err(outcome.Err).Str("email", creds.Email).Str("state", string(outcome.State)).Msg("login attempt failed")
	}
	return outcome
}

func (lc *LoginController) login(ctx context.Context, creds Credentials) Outcome {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := users.ValidateCredentials(creds.Email, creds.Password); err != nil {
		return failed(newKindError(ErrValidation, upperFirst(err.Error()), nil))
	}
	log.Debug().Str("email", creds.Email).Bool("admin", creds.IsAdminAttempt).Msg("starting login")

	if err := lc.cleanup(ctx); err != nil {
		return failed(err)
	}
	if err := lc.backend.SignOut(ctx, backend.ScopeGlobal); err != nil {
		log.Debug().Err(err).Msg("[LoginController.login] pre login sign out ignored")
	}

	result, err := lc.backend.SignInWithPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		if creds.IsAdminAttempt && users.SameEmail(creds.Email, lc.adminEmail) {
			return lc.adminSignInFailure(ctx, err)
		}
		return lc.signInFailure(ctx, creds.Email, err)
	}
	if result == nil || result.User == nil {
		return failed(newKindError(ErrCredentials, "An error occurred", nil))
	}

	if creds.IsAdminAttempt {
		role, err := lc.roleCheck.Role(ctx, result.User)
		if err != nil {
			lc.metrics.RecordRoleLookupFailure()
			log.Err(err).Str("user", result.User.ID).Msg("admin role check failed")
			return accessDenied(result.User, newKindError(ErrProfileLookup, accessDeniedMessage, err))
		}
		if role != users.RoleAdmin {
			return accessDenied(result.User, newKindError(ErrAuthorization, accessDeniedMessage, nil))
		}
		return lc.succeed(ctx, result, Outcome{
			State:       StateSuccess,
			Destination: DestinationAdminDashboard,
			Title:       "Admin login successful!",
			Description: "Redirecting to dashboard...",
			User:        result.User,
		})
	}

	return lc.succeed(ctx, result, Outcome{
		State:       StateSuccess,
		Destination: DestinationHome,
		Title:       "Login successful!",
		User:        result.User,
	})
}

const accessDeniedMessage = "Access denied. Admin privileges required."

func (lc *LoginController) adminSignInFailure(ctx context.Context, err error) Outcome {
	if backend.IsEmailNotConfirmed(err) && lc.policy == PolicyBypass {
		log.Warn().Str("email", lc.adminEmail).Msg("bypassing email confirmation for admin user")
		lc.navigate(ctx, DestinationAdminDashboard)
		return Outcome{
			State:       StateSuccess,
			Destination: DestinationAdminDashboard,
			Title:       "Admin Login Successful",
			Description: "Bypassing email confirmation for admin user.",
			Bypassed:    true,
		}
	}
	return failed(classify(err))
}

func (lc *LoginController) signInFailure(ctx context.Context, email string, err error) Outcome {
	if !backend.IsEmailNotConfirmed(err) {
		return failed(classify(err))
	}
	if resendErr := lc.backend.ResendConfirmation(ctx, email); resendErr != nil {
		log.Err(resendErr).Str("email", email).Msg("[LoginController.signInFailure] resend confirmation")
	}
	return Outcome{
		State:       StateEmailUnconfirmed,
		Title:       "Email verification required",
		Description: "We've sent you a verification email. Please check your inbox.",
		Err:         classify(err),
	}
}

// succeed waits for the store to reflect the new session, then navigates.
// A store that has not settled within the timeout does not block navigation.
func (lc *LoginController) succeed(ctx context.Context, result *backend.SignInResult, outcome Outcome) Outcome {
	if lc.settleTimeout > 0 {
		settleCtx, cancel := context.WithTimeout(ctx, lc.settleTimeout)
		err := lc.store.WaitForUser(settleCtx, result.User.ID)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("user", result.User.ID).Msg("session store did not settle before navigation")
		}
	}
	lc.navigate(ctx, outcome.Destination)
	return outcome
}

func (lc *LoginController) navigate(ctx context.Context, destination Destination) {
	if lc.navigator == nil {
		return
	}
	if err := lc.navigator.Navigate(ctx, destination); err != nil {
		log.Err(err).Str("destination", string(destination)).Msg("[LoginController.navigate]")
	}
}

// Register signs a new user up. The account stays unconfirmed until the
// emailed link is followed, so success points back at the login page.
func (lc *LoginController) Register(ctx context.Context, req SignUpRequest) Outcome {
	lc.attempt.Lock()
	defer lc.attempt.Unlock()

	lc.setState(StateSubmitting)
	outcome := lc.register(ctx, req)
	lc.setState(outcome.State)
	return outcome
}

func (lc *LoginController) register(ctx context.Context, req SignUpRequest) Outcome {
	req.Email = strings.TrimSpace(req.Email)
	metadata := users.Metadata{FirstName: strings.TrimSpace(req.FirstName), LastName: strings.TrimSpace(req.LastName), Role: req.Role}
	if err := metadata.Validate(); err != nil {
		return registrationFailed(newKindError(ErrValidation, upperFirst(err.Error()), nil))
	}
	if err := users.ValidateCredentials(req.Email, req.Password); err != nil {
		return registrationFailed(newKindError(ErrValidation, upperFirst(err.Error()), nil))
	}

	if err := lc.cleanup(ctx); err != nil {
		return registrationFailed(err)
	}
	user, err := lc.backend.SignUp(ctx, req.Email, req.Password, metadata)
	if err != nil {
		return registrationFailed(classify(err))
	}
	return Outcome{
		State:       StateSuccess,
		Destination: DestinationLogin,
		Title:       "Registration successful!",
		Description: "Please check your email to confirm your account.",
		User:        user,
	}
}

// cleanup clears auth artifacts from every store. It fails when auth keys
// remain afterwards or the stores cannot be checked.
func (lc *LoginController) cleanup(ctx context.Context) error {
	removed, err := artifacts.Cleanup(ctx, lc.stores...)
	if err != nil {
		log.Err(err).Msg("[LoginController.cleanup] artifacts.Cleanup")
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("cleared local auth state")
	}

	residual, err := artifacts.Residual(ctx, lc.stores...)
	if err != nil {
		return newKindError(ErrLocalState, localStateMessage, err)
	}
	if len(residual) > 0 {
		return newKindError(ErrLocalState, localStateMessage,
			errors.Errorf("[LoginController.cleanup] auth keys remain: %s", strings.Join(residual, ", ")))
	}
	return nil
}

const localStateMessage = "Could not clear local session"

func failed(err error) Outcome {
	return Outcome{State: StateFailed, Title: "Login failed", Description: UserMessage(err), Err: err}
}

func registrationFailed(err error) Outcome {
	return Outcome{State: StateFailed, Title: "Registration failed", Description: UserMessage(err), Err: err}
}

func accessDenied(user *users.User, err error) Outcome {
	return Outcome{State: StateAccessDenied, Title: "Login failed", Description: accessDeniedMessage, User: user, Err: err}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
