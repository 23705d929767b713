package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	defaultEnv            = EnvLocal
	defaultConfigDir      = ".posclient"
	defaultPageSize       = 200
	defaultSyncInterval   = 300
	defaultPushInterval   = 60
	defaultSupportAddress = "localhost:8686"
	defaultHTTPTimeout    = 30
	credentialsFile       = "credentials.env"
)

type Config struct {
	Env             string
	// LogLevel overrides the level implied by Env when set.
	LogLevel        string
	ERPURL          string
	APIKey          string
	APISecret       string
	ConfigDir       string
	DataPath        string
	StatsPath       string
	// CredentialsPath holds the API key pair saved by the login command.
	CredentialsPath string
	POSProfile      string
	PageSize        int
	SyncInterval    time.Duration
	PushInterval    time.Duration
	SupportAddress  string
	HTTPTimeout     time.Duration
}

// Load reads .env (when present), the environment and an optional YAML file.
// Environment variables win over the file.
func Load(configFile string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("app_env", defaultEnv)
	v.SetDefault("config_dir", defaultConfigDir)
	v.SetDefault("page_size", defaultPageSize)
	v.SetDefault("sync_interval_seconds", defaultSyncInterval)
	v.SetDefault("push_interval_seconds", defaultPushInterval)
	v.SetDefault("support_address", defaultSupportAddress)
	v.SetDefault("http_timeout_seconds", defaultHTTPTimeout)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	configDir := v.GetString("config_dir")
	if configDir == defaultConfigDir {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		configDir = filepath.Join(home, configDir)
	}
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	dataPath := v.GetString("data_path")
	if dataPath == "" {
		dataPath = filepath.Join(configDir, "pos.db")
	}

	creds, err := readCredentials(filepath.Join(configDir, credentialsFile))
	if err != nil {
		return nil, err
	}
	apiKey, apiSecret := v.GetString("erp_api_key"), v.GetString("erp_api_secret")
	if apiKey == "" && apiSecret == "" {
		apiKey, apiSecret = creds["ERP_API_KEY"], creds["ERP_API_SECRET"]
	}

	cfg := &Config{
		Env:             v.GetString("app_env"),
		LogLevel:        v.GetString("log_level"),
		ERPURL:          v.GetString("erp_url"),
		APIKey:          apiKey,
		APISecret:       apiSecret,
		ConfigDir:       configDir,
		DataPath:        dataPath,
		StatsPath:       filepath.Join(configDir, "sync_stats.json"),
		CredentialsPath: filepath.Join(configDir, credentialsFile),
		POSProfile:      v.GetString("pos_profile"),
		PageSize:        v.GetInt("page_size"),
		SyncInterval:    time.Duration(v.GetInt("sync_interval_seconds")) * time.Second,
		PushInterval:    time.Duration(v.GetInt("push_interval_seconds")) * time.Second,
		SupportAddress:  v.GetString("support_address"),
		HTTPTimeout:     time.Duration(v.GetInt("http_timeout_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load for program start-up.
func MustLoad(configFile string) *Config {
	cfg, err := Load(configFile)
	if err != nil {
		panic(err)
	}
	return cfg
}

func loadDotEnv() {
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", envPath, err)
		}
	}
}

func readCredentials(path string) (map[string]string, error) {
	creds, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return creds, nil
}

// SaveCredentials stores the API key pair in the file Load falls back to when the
// environment carries no credentials.
func SaveCredentials(path, apiKey, apiSecret string) error {
	err := godotenv.Write(map[string]string{
		"ERP_API_KEY":    apiKey,
		"ERP_API_SECRET": apiSecret,
	}, path)
	if err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return os.Chmod(path, 0o600)
}

func (c *Config) validate() error {
	var errs []error
	if c.ERPURL == "" {
		errs = append(errs, errors.New("erp_url is required"))
	} else if u, err := url.Parse(c.ERPURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("erp_url %q is not an absolute URL", c.ERPURL))
	}
	if c.PageSize < 1 {
		errs = append(errs, errors.New("page_size must be positive"))
	}
	if c.SyncInterval <= 0 || c.PushInterval <= 0 {
		errs = append(errs, errors.New("sync and push intervals must be positive"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http_timeout_seconds must be positive"))
	}
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("unknown app_env %q", c.Env))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}

func (c *Config) IsLocal() bool {
	return c.Env == EnvLocal || c.Env == ""
}
