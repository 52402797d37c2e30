package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                    = "AMBASSADOR"
	defaultHTTPAddress           = "0.0.0.0:8080"
	defaultDatabaseDriver        = DatabaseDriverSQLite
	defaultDatabaseDSN           = "ambassador.db"
	defaultLogLevel              = "info"
	defaultSessionIssuer         = "tauth"
	defaultSessionCookieName     = "app_session"
	defaultAdminTokenTTLMinutes  = 60
	defaultLeaderboardTTLSeconds = 60
	defaultCloudinaryFolder      = "ambassador"
	defaultSubmissionsPerMinute  = 10
	defaultLoginPerMinute        = 5
)

const (
	DatabaseDriverSQLite = "sqlite"
	DatabaseDriverMySQL  = "mysql"
)

// AppConfig captures runtime configuration for the API server and batch commands.
type AppConfig struct {
	HTTPAddress          string
	DatabaseDriver       string
	DatabaseDSN          string
	LogLevel             string
	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	AdminSigningSecret   string
	AdminTokenTTL        time.Duration
	AdminAccounts        map[string]string
	RedisAddress         string
	RedisPassword        string
	RedisDB              int
	LeaderboardCacheTTL  time.Duration
	Cloudinary           CloudinaryConfig
	SubmissionsPerMinute int
	LoginPerMinute       int
}

// CloudinaryConfig holds blob storage credentials; an empty CloudName disables uploads.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Enabled reports whether all Cloudinary credentials are present.
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.cookie_name", defaultSessionCookieName)
	configViper.SetDefault("admin.token_ttl_minutes", defaultAdminTokenTTLMinutes)
	configViper.SetDefault("leaderboard.cache_ttl_seconds", defaultLeaderboardTTLSeconds)
	configViper.SetDefault("cloudinary.folder", defaultCloudinaryFolder)
	configViper.SetDefault("ratelimit.submissions_per_minute", defaultSubmissionsPerMinute)
	configViper.SetDefault("ratelimit.login_per_minute", defaultLoginPerMinute)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	accounts := make(map[string]string)
	for email, hash := range configViper.GetStringMapString("admin.accounts") {
		normalized := strings.ToLower(strings.TrimSpace(email))
		if normalized == "" {
			continue
		}
		accounts[normalized] = strings.TrimSpace(hash)
	}

	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		AdminSigningSecret:   configViper.GetString("admin.signing_secret"),
		AdminTokenTTL:        time.Duration(configViper.GetInt("admin.token_ttl_minutes")) * time.Minute,
		AdminAccounts:        accounts,
		RedisAddress:         strings.TrimSpace(configViper.GetString("cache.redis_address")),
		RedisPassword:        configViper.GetString("cache.redis_password"),
		RedisDB:              configViper.GetInt("cache.redis_db"),
		LeaderboardCacheTTL:  time.Duration(configViper.GetInt("leaderboard.cache_ttl_seconds")) * time.Second,
		Cloudinary: CloudinaryConfig{
			CloudName: strings.TrimSpace(configViper.GetString("cloudinary.cloud_name")),
			APIKey:    strings.TrimSpace(configViper.GetString("cloudinary.api_key")),
			APISecret: strings.TrimSpace(configViper.GetString("cloudinary.api_secret")),
			Folder:    strings.TrimSpace(configViper.GetString("cloudinary.folder")),
		},
		SubmissionsPerMinute: configViper.GetInt("ratelimit.submissions_per_minute"),
		LoginPerMinute:       configViper.GetInt("ratelimit.login_per_minute"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the settings batch commands need (database, cache and logging).
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		LogLevel:       configViper.GetString("log.level"),
		RedisAddress:   strings.TrimSpace(configViper.GetString("cache.redis_address")),
		RedisPassword:  configViper.GetString("cache.redis_password"),
		RedisDB:        configViper.GetInt("cache.redis_db"),
	}
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.AdminSigningSecret) == "" {
		return fmt.Errorf("admin.signing_secret is required")
	}
	if c.AdminTokenTTL <= 0 {
		return fmt.Errorf("admin.token_ttl_minutes must be positive")
	}
	for email, hash := range c.AdminAccounts {
		if hash == "" {
			return fmt.Errorf("admin.accounts: password hash missing for %s", email)
		}
	}
	if c.LeaderboardCacheTTL <= 0 {
		return fmt.Errorf("leaderboard.cache_ttl_seconds must be positive")
	}
	if c.SubmissionsPerMinute <= 0 || c.LoginPerMinute <= 0 {
		return fmt.Errorf("ratelimit values must be positive")
	}
	return nil
}

func (c AppConfig) validateStorage() error {
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite, DatabaseDriverMySQL:
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return nil
}
