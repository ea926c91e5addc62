package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingSessionSecret is returned by Validate when no signing secret is configured.
var ErrMissingSessionSecret = errors.New("session secret must be set")

const envProduction = "production"

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	App struct {
		Env string
	}
	Server struct {
		Addr string
	}
	Database struct {
		Driver string
		Path   string
		DSN    string
	}
	Session struct {
		Secret     string
		Secrets    []string
		CookieName string
		MaxAge     time.Duration
	}
	Auth struct {
		HashWorkers    int
		RequestTimeout time.Duration
	}
	I18n struct {
		Supported  []string
		Fallback   string
		Namespace  string
		LoadPath   string
		Dir        string
		S3Bucket   string
		S3Prefix   string
		S3Region   string
		S3Endpoint string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	AWS struct {
		Profile string
	}
}

// Production reports whether the app runs with production settings
// (secure cookies, JSON logs, no debug output).
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.App.Env), envProduction)
}

// SigningSecrets returns the primary secret followed by the rotation list,
// blanks and duplicates removed.
func (c Config) SigningSecrets() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range append([]string{c.Session.Secret}, c.Session.Secrets...) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Validate checks settings the process cannot start without.
func (c Config) Validate() error {
	if len(c.SigningSecrets()) == 0 {
		return ErrMissingSessionSecret
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database dsn is required for postgres")
	}
	if len(c.I18n.Supported) == 0 {
		return errors.New("at least one supported language is required")
	}
	return nil
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv(".env")

	v := viper.New()
	v.SetEnvPrefix("KUDOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// SESSION_SECRET / NODE_ENV style names are accepted as well.
	_ = v.BindEnv("session.secret", "KUDOS_SESSION_SECRET", "SESSION_SECRET")
	_ = v.BindEnv("app.env", "KUDOS_APP_ENV", "APP_ENV", "NODE_ENV")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// env values arrive as a single comma separated string
	cfg.I18n.Supported = splitList(v.GetStringSlice("i18n.supported"))
	cfg.Session.Secrets = splitList(v.GetStringSlice("session.secrets"))

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/kudos.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.secrets", []string{})
	v.SetDefault("session.cookiename", "session")
	v.SetDefault("session.maxage", 30*24*time.Hour)
	v.SetDefault("auth.hashworkers", 4)
	v.SetDefault("auth.requesttimeout", 10*time.Second)
	v.SetDefault("i18n.supported", []string{"en", "ko"})
	v.SetDefault("i18n.fallback", "en")
	v.SetDefault("i18n.namespace", "translation")
	v.SetDefault("i18n.loadpath", "{{lng}}/{{ns}}.json")
	v.SetDefault("i18n.dir", "")
	v.SetDefault("i18n.s3bucket", "")
	v.SetDefault("i18n.s3prefix", "locales")
	v.SetDefault("i18n.s3region", "us-east-1")
	v.SetDefault("i18n.s3endpoint", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("aws.profile", "")
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
