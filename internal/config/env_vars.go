package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "CAMPUSAUTH"
	configName = "campusauth"
)

type Env struct {
	Name        string `mapstructure:"env"`
	AppName     string `mapstructure:"appname"`
	MetricsAddr string `mapstructure:"metricsaddr"`
}

var _ EnvConfig = Env{}

func (e Env) GetEnv() string { return e.Name }
func (e Env) GetAppName() string { return e.AppName }
func (e Env) GetMetricsAddr() string { return e.MetricsAddr }

// Load reads campusauth.yaml (or file when set), CAMPUSAUTH_* environment
// variables and defaults, in increasing order of precedence: defaults, file, env.
func Load(file string) (Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, errors.Wrap(err, "[config.Load] ReadInConfig")
		}
	}

	var cfg mainConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, errors.Wrap(err, "[config.Load] Unmarshal")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "DEV")
	v.SetDefault("appname", "Campus Auth")
	v.SetDefault("metricsaddr", "")

	v.SetDefault("admin.email", "admin@aimsr.edu.in")
	v.SetDefault("admin.strategy", "profile")
	v.SetDefault("admin.unconfirmedpolicy", "reject")

	v.SetDefault("backend.mode", "memory")
	v.SetDefault("backend.url", "http://localhost:9999")
	v.SetDefault("backend.apikey", "")
	v.SetDefault("backend.projectref", "campus")
	v.SetDefault("backend.postgresdsn", "")
	v.SetDefault("backend.requesttimeout", "10s")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "./data/auth.json")
	v.SetDefault("storage.redisaddr", "127.0.0.1:6379")
	v.SetDefault("storage.redispassword", "")
	v.SetDefault("storage.redisdb", 0)
	v.SetDefault("storage.redisnamespace", "campusauth:")

	v.SetDefault("mail.sesregion", "us-east-1")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.fromname", "Campus Events")
	v.SetDefault("mail.siteurl", "http://localhost:8080")

	v.SetDefault("login.settletimeout", "5s")
}
