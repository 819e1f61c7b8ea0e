package config

import (
	"strings"
	"time"

	"github.com/prayercircle/prayercircle/params"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
	DefaultArchiveDir = "./archive"
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

// CacheConfig selects the backend for short-lived state (rate-limit blocks).
// Backend is "memory" or "redis".
type CacheConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type SessionConfig struct {
	TTLDays        int    `mapstructure:"ttlDays"`
	CookieName     string `mapstructure:"cookieName"`
	CookieHttpOnly bool   `mapstructure:"cookieHttpOnly"`
	CookieSecure   bool   `mapstructure:"cookieSecure"`
}

func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// AuthConfig tunes the multi-device approval protocol. All values have
// working defaults applied by Sanitize; tests construct arbitrary values
// directly.
type AuthConfig struct {
	MultiDeviceEnabled         bool          `mapstructure:"multiDeviceEnabled"`
	ApprovalQuorum             int           `mapstructure:"approvalQuorum"`
	MaxRequestsPerHour         int           `mapstructure:"maxRequestsPerHour"`
	RateLimitBlock             time.Duration `mapstructure:"rateLimitBlock"`
	InviteVerificationRequired bool          `mapstructure:"inviteVerificationRequired"`
	EnforceIPBinding           bool          `mapstructure:"enforceIPBinding"`
}

type ArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

type Config struct {
	Debug        bool          `mapstructure:"debug"`
	SiteName     string        `mapstructure:"siteName"`
	BaseURL      string        `mapstructure:"baseURL"`
	ListenAddr   string        `mapstructure:"listenAddr"`
	AllowOrigins []string      `mapstructure:"allowOrigins"`
	MySQL        MySQLConfig   `mapstructure:"mysql"`
	Cache        CacheConfig   `mapstructure:"cache"`
	Session      SessionConfig `mapstructure:"session"`
	Auth         AuthConfig    `mapstructure:"auth"`
	Archive      ArchiveConfig `mapstructure:"archive"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = DefaultArchiveDir
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Session.TTLDays == 0 {
		c.Session.TTLDays = params.DefaultSessionTTLDays
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Auth.ApprovalQuorum == 0 {
		c.Auth.ApprovalQuorum = params.DefaultApprovalQuorum
	}
	if c.Auth.MaxRequestsPerHour == 0 {
		c.Auth.MaxRequestsPerHour = params.DefaultMaxAuthRequestsPerHour
	}
	if c.Auth.RateLimitBlock == 0 {
		c.Auth.RateLimitBlock = params.DefaultRateLimitBlock
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("auth.multiDeviceEnabled", true)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
