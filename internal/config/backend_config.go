package config

import (
	"strings"
	"time"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

type Backend struct {
	Mode           string        `mapstructure:"mode"` // "memory" or "gotrue"
	URL            string        `mapstructure:"url"`
	APIKey         string        `mapstructure:"apikey"`
	ProjectRef     string        `mapstructure:"projectref"`
	PostgresDSN    string        `mapstructure:"postgresdsn"`
	RequestTimeout time.Duration `mapstructure:"requesttimeout"`
}

var _ BackendConfig = Backend{}

func (b Backend) GetBackendMode() string { return b.Mode }
func (b Backend) GetBackendURL() string { return strings.TrimRight(b.URL, "/") }
func (b Backend) GetBackendAPIKey() string { return b.APIKey }
func (b Backend) GetProjectRef() string { return b.ProjectRef }
func (b Backend) GetPostgresDSN() string { return b.PostgresDSN }
func (b Backend) GetRequestTimeout() time.Duration { return b.RequestTimeout }

type Storage struct {
	Driver         string `mapstructure:"driver"` // "file", "redis" or "memory"
	Path           string `mapstructure:"path"`
	RedisAddr      string `mapstructure:"redisaddr"`
	RedisPassword  string `mapstructure:"redispassword"`
	RedisDB        int    `mapstructure:"redisdb"`
	RedisNamespace string `mapstructure:"redisnamespace"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetArtifactsDriver() string { return s.Driver }
func (s Storage) GetArtifactsPath() string { return s.Path }
func (s Storage) GetRedisAddr() string { return s.RedisAddr }
func (s Storage) GetRedisPassword() string { return s.RedisPassword }
func (s Storage) GetRedisDB() int { return s.RedisDB }
func (s Storage) GetRedisNamespace() string { return s.RedisNamespace }

type Mail struct {
	SESRegion string `mapstructure:"sesregion"`
	From      string `mapstructure:"from"`
	FromName  string `mapstructure:"fromname"`
	SiteURL   string `mapstructure:"siteurl"`
}

var _ MailConfig = Mail{}

func (m Mail) GetSESRegion() string { return m.SESRegion }
func (m Mail) GetMailFrom() string { return m.From }
func (m Mail) GetMailFromName() string { return m.FromName }
func (m Mail) GetSiteURL() string { return strings.TrimRight(m.SiteURL, "/") }

type Login struct {
	SettleTimeout time.Duration `mapstructure:"settletimeout"`
}

var _ LoginConfig = Login{}

func (l Login) GetSettleTimeout() time.Duration { return l.SettleTimeout }
