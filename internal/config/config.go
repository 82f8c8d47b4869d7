package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppName        string        `mapstructure:"APP_NAME"`
	Debug          bool          `mapstructure:"DEBUG"`
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	MaxUploadMB    int64         `mapstructure:"MAX_UPLOAD_MB"`
	SentryDSN      string        `mapstructure:"SENTRY_DSN"`

	BackboardAPIKey string        `mapstructure:"BACKBOARD_API_KEY"`
	BackboardURL    string        `mapstructure:"BACKBOARD_API_URL"`
	AssistantID     string        `mapstructure:"ASSISTANT_ID"`
	BackboardMock   bool          `mapstructure:"BACKBOARD_MOCK"`
	VendorTimeout   time.Duration `mapstructure:"VENDOR_TIMEOUT"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	GeocoderEnabled bool    `mapstructure:"GEOCODER_ENABLED"`
	NominatimURL    string  `mapstructure:"NOMINATIM_URL"`
	MatchRadiusM    float64 `mapstructure:"MATCH_RADIUS_M"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("APP_NAME", "CityPulse")
	v.SetDefault("DEBUG", false)
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8000")
	v.SetDefault("DATABASE_URL", "sqlite://citypulse.db")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "180s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 32)
	v.SetDefault("SENTRY_DSN", "")

	v.SetDefault("BACKBOARD_API_KEY", "")
	v.SetDefault("BACKBOARD_API_URL", "https://app.backboard.io/api")
	v.SetDefault("ASSISTANT_ID", "")
	v.SetDefault("BACKBOARD_MOCK", false)
	v.SetDefault("VENDOR_TIMEOUT", "30s")

	v.SetDefault("RATE_LIMIT_RPS", 2)
	v.SetDefault("RATE_LIMIT_BURST", 5)

	v.SetDefault("GEOCODER_ENABLED", false)
	v.SetDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("MATCH_RADIUS_M", 100)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
