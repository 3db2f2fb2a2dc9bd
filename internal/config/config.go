package config

import "time"

type Config interface {
	EnvConfig
	AdminConfig
	BackendConfig
	StorageConfig
	MailConfig
	LoginConfig
}

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetMetricsAddr() string
}

type AdminConfig interface {
	GetAdminEmail() string
	GetAdminStrategy() string
	GetAdminUnconfirmedPolicy() string
}

type BackendConfig interface {
	GetBackendMode() string
	GetBackendURL() string
	GetBackendAPIKey() string
	GetProjectRef() string
	GetPostgresDSN() string
	GetRequestTimeout() time.Duration
}

type StorageConfig interface {
	GetArtifactsDriver() string
	GetArtifactsPath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisNamespace() string
}

type MailConfig interface {
	GetSESRegion() string
	GetMailFrom() string
	GetMailFromName() string
	GetSiteURL() string
}

type LoginConfig interface {
	GetSettleTimeout() time.Duration
}

type mainConfig struct {
	Env     `mapstructure:",squash"`
	Admin   `mapstructure:"admin"`
	Backend `mapstructure:"backend"`
	Storage `mapstructure:"storage"`
	Mail    `mapstructure:"mail"`
	Login   `mapstructure:"login"`
}
