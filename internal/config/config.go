package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	DBFile    string `validate:"required"`
	AdminAddr string `validate:"required,hostname_port|startswith=:"`
	APIAddr   string `validate:"required,hostname_port|startswith=:"`
	BaseURL   string `validate:"required,url"`
	Title     string `validate:"required,max=64"`
	ToastTTL  time.Duration

	VAPIDPublicKey  string `validate:"required_with=VAPIDPrivateKey"`
	VAPIDPrivateKey string `validate:"required_with=VAPIDPublicKey"`
	VAPIDSubscriber string `validate:"required_with=VAPIDPublicKey"`
}

func Load(cliMode bool) (*Config, error) {
	toastTTL, err := time.ParseDuration(getEnv("TOAST_TTL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOAST_TTL: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("WORDFLIGHT_DB", "wordflight.db"),
		AdminAddr:       getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		Title:           getEnv("APP_TITLE", "WordFlight"),
		ToastTTL:        toastTTL,
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber: getEnv("VAPID_SUBSCRIBER", "mailto:admin@localhost"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. The CLI only talks to the admin API,
// so only its address matters there.
func (c *Config) Validate(cliMode bool) error {
	if cliMode {
		return validate.Var(c.AdminAddr, "required,hostname_port")
	}

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.ToastTTL <= 0 {
		return errors.New("TOAST_TTL must be greater than 0")
	}

	return nil
}

// PushEnabled reports whether VAPID keys were provided.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
