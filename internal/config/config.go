package config

import (
	"fmt"
	"os"
	"strings"

	"cdv-engine/internal/domain"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string
	DatabaseURL         string
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	SendinblueAPIKey    string // SENDINBLUE_API_KEY for investor invites (Brevo)
	MailFrom            string
	InvestorPortalURL   string // link sent in the onboarding email
	PublicValidationURL string // base of the validation link printed on certificates
	CDV                 CDVConfig
}

// CDVConfig is the fixed product definition of a Digital Green Certificate quota.
type CDVConfig struct {
	UnitPrice               float64
	Bundle                  domain.Bundle
	CO2PerQuotaKg           int64
	DefaultMaturationMonths int
	MaxRetries              uint64
	StrictRangeAssignment   bool
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("CDV_UNIT_PRICE", 2000)
	v.SetDefault("CDV_BUNDLE_WASTE", 250)
	v.SetDefault("CDV_BUNDLE_EDUCATION", 5)
	v.SetDefault("CDV_BUNDLE_PRODUCTS", 1)
	v.SetDefault("CDV_CO2_PER_QUOTA_KG", 225)
	v.SetDefault("CDV_DEFAULT_MATURATION_MONTHS", 12)
	v.SetDefault("CDV_MAX_RETRIES", 3)

	port := v.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := v.GetString("NODE_ENV")
	if env == "" {
		env = v.GetString("APP_ENV")
	}
	if env == "" {
		env = "development"
	}

	dbURL := v.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = v.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = v.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	cfg := &Config{
		Env:                 env,
		Port:                port,
		SessionSecret:       v.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            v.GetString("REDIS_URL"),
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(v.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      v.GetString("HEALTH_ADMIN_KEY"),
		SendinblueAPIKey:    v.GetString("SENDINBLUE_API_KEY"),
		MailFrom:            v.GetString("MAIL_FROM"),
		InvestorPortalURL:   portalURL(v.GetString("INVESTOR_PORTAL_URL")),
		PublicValidationURL: v.GetString("PUBLIC_VALIDATION_URL"),
		CDV: CDVConfig{
			UnitPrice: v.GetFloat64("CDV_UNIT_PRICE"),
			Bundle: domain.Bundle{
				Waste:     v.GetInt64("CDV_BUNDLE_WASTE"),
				Education: v.GetInt64("CDV_BUNDLE_EDUCATION"),
				Products:  v.GetInt64("CDV_BUNDLE_PRODUCTS"),
			},
			CO2PerQuotaKg:           v.GetInt64("CDV_CO2_PER_QUOTA_KG"),
			DefaultMaturationMonths: v.GetInt("CDV_DEFAULT_MATURATION_MONTHS"),
			MaxRetries:              v.GetUint64("CDV_MAX_RETRIES"),
			StrictRangeAssignment:   strings.EqualFold(v.GetString("CDV_STRICT_RANGE_ASSIGNMENT"), "true"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.CDV.UnitPrice <= 0 {
		return fmt.Errorf("%w: CDV_UNIT_PRICE must be positive", domain.ErrInvalidInput)
	}
	if !cfg.CDV.Bundle.Valid() {
		return fmt.Errorf("%w: CDV_BUNDLE_* values must be positive", domain.ErrInvalidInput)
	}
	if cfg.CDV.DefaultMaturationMonths <= 0 {
		return fmt.Errorf("%w: CDV_DEFAULT_MATURATION_MONTHS must be positive", domain.ErrInvalidInput)
	}
	return nil
}

func portalURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "https://ciclik.com.br/cdv/investor"
	}
	return s
}
