package config

type Admin struct {
	Email string `mapstructure:"email"`
	// Strategy is "profile" (role lookup) or "email" (designated address match).
	// The email strategy treats an address as a credential and is meant for demos.
	Strategy string `mapstructure:"strategy"`
	// UnconfirmedPolicy is "reject" or "bypass" for an admin whose email is unconfirmed.
	UnconfirmedPolicy string `mapstructure:"unconfirmedpolicy"`
}

var _ AdminConfig = Admin{}

func (a Admin) GetAdminEmail() string { return a.Email }
func (a Admin) GetAdminStrategy() string { return a.Strategy }
func (a Admin) GetAdminUnconfirmedPolicy() string { return a.UnconfirmedPolicy }
