// Package config loads daemon settings from defaults, an optional
// celerix-tasks.yaml file, a .env file and the environment, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Config struct {
	Port  string
	Store StoreConfig
	Mongo MongoConfig
	JWT   JWTConfig
	Log   LogConfig
	// GinMode is passed to gin.SetMode.
	GinMode string
}

type StoreConfig struct {
	Driver     string
	DataDir    string
	SQLitePath string
	// EncryptionKey is a hex-encoded AES-256 key. When set, the file and
	// sqlite drivers encrypt every document at rest.
	EncryptionKey string
}

type MongoConfig struct {
	URI      string
	Database string
}

type JWTConfig struct {
	Secret        string
	RefreshSecret string
	Expire        string
	RefreshExpire string
}

type LogConfig struct {
	Level  string
	Format string
}

// bindings maps config keys to the environment variables that override them.
var bindings = map[string]string{
	"port":                 "PORT",
	"store.driver":         "CELERIX_STORE_DRIVER",
	"store.data_dir":       "CELERIX_DATA_DIR",
	"store.sqlite_path":    "CELERIX_SQLITE_PATH",
	"store.encryption_key": "CELERIX_ENCRYPTION_KEY",
	"mongo.uri":            "MONGO_URI",
	"mongo.database":       "MONGO_DATABASE",
	"jwt.secret":           "JWT_SECRET",
	"jwt.refresh_secret":   "JWT_REFRESH_SECRET",
	"jwt.expire":           "JWT_EXPIRE",
	"jwt.refresh_expire":   "JWT_REFRESH_EXPIRE",
	"log.level":            "LOG_LEVEL",
	"log.format":           "LOG_FORMAT",
	"gin.mode":             "GIN_MODE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "5000")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.data_dir", "./data")
	v.SetDefault("store.sqlite_path", "./data/celerix-tasks.db")
	v.SetDefault("store.encryption_key", "")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "celerix_tasks")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.refresh_secret", "")
	v.SetDefault("jwt.expire", "1d")
	v.SetDefault("jwt.refresh_expire", "7d")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("gin.mode", "release")
}

// Load reads the configuration. configFile may be empty, in which case
// celerix-tasks.yaml is looked up in the working directory and /etc/celerix-tasks.
// A missing .env or config file is not an error.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("celerix-tasks")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/celerix-tasks")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return &Config{
		Port: v.GetString("port"),
		Store: StoreConfig{
			Driver:        strings.ToLower(v.GetString("store.driver")),
			DataDir:       v.GetString("store.data_dir"),
			SQLitePath:    v.GetString("store.sqlite_path"),
			EncryptionKey: v.GetString("store.encryption_key"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		JWT: JWTConfig{
			Secret:        v.GetString("jwt.secret"),
			RefreshSecret: v.GetString("jwt.refresh_secret"),
			Expire:        v.GetString("jwt.expire"),
			RefreshExpire: v.GetString("jwt.refresh_expire"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		GinMode: v.GetString("gin.mode"),
	}, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverFile, DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver != DriverMemory && (c.JWT.Secret == "" || c.JWT.RefreshSecret == "") {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET are required")
	}
	if _, err := ParseExpiry(c.JWT.Expire); err != nil {
		return fmt.Errorf("jwt.expire: %w", err)
	}
	if _, err := ParseExpiry(c.JWT.RefreshExpire); err != nil {
		return fmt.Errorf("jwt.refresh_expire: %w", err)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// TokenTTLs returns the parsed access and refresh token lifetimes.
func (c *Config) TokenTTLs() (time.Duration, time.Duration, error) {
	access, err := ParseExpiry(c.JWT.Expire)
	if err != nil {
		return 0, 0, err
	}
	refresh, err := ParseExpiry(c.JWT.RefreshExpire)
	if err != nil {
		return 0, 0, err
	}
	return access, refresh, nil
}

// ParseExpiry parses a token lifetime. It accepts Go durations ("12h",
// "90m"), a number of days ("7d") and a bare number of seconds ("3600").
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty expiry")
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid expiry %q", s)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid expiry %q", s)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid expiry %q", s)
	}
	return d, nil
}
