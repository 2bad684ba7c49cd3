/**
 * @description
 * Configuration management for the portfolio service.
 * All settings are read from environment variables via viper; a local .env
 * file is loaded by cmd/main.go before this runs.
 */
package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort          string `mapstructure:"SERVER_PORT"`
	DatabaseURL         string `mapstructure:"DATABASE_URL"`
	VaultEncryptionKey  string `mapstructure:"VAULT_ENCRYPTION_KEY"`
	SessionJWTSecret    string `mapstructure:"SESSION_JWT_SECRET"`
	IdentityJWTSecret   string `mapstructure:"IDENTITY_JWT_SECRET"`
	RabbitMQURL         string `mapstructure:"RABBITMQ_URL"`
	RedisURL            string `mapstructure:"REDIS_URL"`
	KiteBaseURL         string `mapstructure:"KITE_BASE_URL"`
	GrowwBaseURL        string `mapstructure:"GROWW_BASE_URL"`
	QuoteBaseURL        string `mapstructure:"QUOTE_BASE_URL"`
	QuoteAPIKey         string `mapstructure:"QUOTE_API_KEY"`
	FundamentalsBaseURL string `mapstructure:"FUNDAMENTALS_BASE_URL"`
	MFAPIBaseURL        string `mapstructure:"MFAPI_BASE_URL"`
	CORSAllowedOrigins  string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("KITE_BASE_URL", "https://api.kite.trade")
	viper.SetDefault("GROWW_BASE_URL", "https://api.groww.in")
	viper.SetDefault("QUOTE_BASE_URL", "https://api.kite.trade")
	viper.SetDefault("FUNDAMENTALS_BASE_URL", "https://www.screener.in")
	viper.SetDefault("MFAPI_BASE_URL", "https://api.mfapi.in")
	viper.AutomaticEnv()

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("VAULT_ENCRYPTION_KEY")
	_ = viper.BindEnv("SESSION_JWT_SECRET")
	_ = viper.BindEnv("IDENTITY_JWT_SECRET")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("KITE_BASE_URL")
	_ = viper.BindEnv("GROWW_BASE_URL")
	_ = viper.BindEnv("QUOTE_BASE_URL")
	_ = viper.BindEnv("QUOTE_API_KEY")
	_ = viper.BindEnv("FUNDAMENTALS_BASE_URL")
	_ = viper.BindEnv("MFAPI_BASE_URL")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	err = viper.Unmarshal(&config)
	// If a platform-provided PORT is set (e.g., Railway/Render), prefer it.
	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}
	return
}
