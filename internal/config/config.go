/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the remittance-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string  `mapstructure:"SERVER_PORT"`
	DatabaseURL          string  `mapstructure:"DATABASE_URL"`
	RedisURL             string  `mapstructure:"REDIS_URL"`
	RedisFXCachePrefix   string  `mapstructure:"REDIS_FX_CACHE_PREFIX"`
	RabbitMQURL          string  `mapstructure:"RABBITMQ_URL"`
	TransferEventExchange string `mapstructure:"TRANSFER_EVENT_EXCHANGE"`
	TransferStatusQueue  string  `mapstructure:"TRANSFER_STATUS_QUEUE"`
	FXAPIBaseURL         string  `mapstructure:"FX_API_BASE_URL"`
	FXAPIKey             string  `mapstructure:"FX_API_KEY"`
	BankDirectoryBaseURL string  `mapstructure:"BANK_DIRECTORY_BASE_URL"`
	BankDirectoryAPIKey  string  `mapstructure:"BANK_DIRECTORY_API_KEY"`
	AuthJWKSURL          string  `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience         string  `mapstructure:"AUTH_AUDIENCE"`
	AuthIssuer           string  `mapstructure:"AUTH_ISSUER"`
	HomeCurrency         string  `mapstructure:"HOME_CURRENCY"`
	TransferFeeFils      int64   `mapstructure:"TRANSFER_FEE_FILS"`
	FXCacheTTLMinutes    int     `mapstructure:"FX_CACHE_TTL_MINUTES"`
	FXRefreshSchedule    string  `mapstructure:"FX_REFRESH_SCHEDULE"`
	SessionSweepSchedule string  `mapstructure:"SESSION_SWEEP_SCHEDULE"`
	SessionIdleTTLMin    int     `mapstructure:"SESSION_IDLE_TTL_MINUTES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("REDIS_FX_CACHE_PREFIX", "remit:fx")
	viper.SetDefault("TRANSFER_EVENT_EXCHANGE", "remit.events")
	viper.SetDefault("TRANSFER_STATUS_QUEUE", "remittance_service.transfer_status")
	viper.SetDefault("HOME_CURRENCY", "AED")
	viper.SetDefault("TRANSFER_FEE_FILS", 1500)
	viper.SetDefault("FX_CACHE_TTL_MINUTES", 5)
	viper.SetDefault("FX_REFRESH_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("SESSION_SWEEP_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("SESSION_IDLE_TTL_MINUTES", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "REMITTANCE_REDIS_URL")
	_ = viper.BindEnv("REDIS_FX_CACHE_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("TRANSFER_EVENT_EXCHANGE")
	_ = viper.BindEnv("TRANSFER_STATUS_QUEUE")
	_ = viper.BindEnv("FX_API_BASE_URL")
	_ = viper.BindEnv("FX_API_KEY")
	_ = viper.BindEnv("BANK_DIRECTORY_BASE_URL")
	_ = viper.BindEnv("BANK_DIRECTORY_API_KEY")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("AUTH_AUDIENCE")
	_ = viper.BindEnv("AUTH_ISSUER")
	_ = viper.BindEnv("HOME_CURRENCY")
	_ = viper.BindEnv("TRANSFER_FEE_FILS")
	_ = viper.BindEnv("TRANSFER_FEE")
	_ = viper.BindEnv("FX_CACHE_TTL_MINUTES")
	_ = viper.BindEnv("FX_REFRESH_SCHEDULE")
	_ = viper.BindEnv("SESSION_SWEEP_SCHEDULE")
	_ = viper.BindEnv("SESSION_IDLE_TTL_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	// Allow specifying the fee in whole currency units via TRANSFER_FEE.
	if viper.IsSet("TRANSFER_FEE") {
		feeStr := strings.TrimSpace(viper.GetString("TRANSFER_FEE"))
		if feeStr != "" {
			feeValue, parseErr := strconv.ParseFloat(feeStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid TRANSFER_FEE\" value=%q err=%v", feeStr, parseErr)
			} else {
				config.TransferFeeFils = int64(math.Round(feeValue * 100))
			}
		}
	}

	if config.TransferFeeFils < 0 {
		log.Printf("level=warn component=config msg=\"negative transfer fee configured; coercing to zero\" fee_fils=%d", config.TransferFeeFils)
		config.TransferFeeFils = 0
	}

	config.HomeCurrency = strings.ToUpper(strings.TrimSpace(config.HomeCurrency))
	if config.HomeCurrency == "" {
		config.HomeCurrency = "AED"
	}
	config.TransferEventExchange = strings.TrimSpace(config.TransferEventExchange)
	if config.TransferEventExchange == "" {
		config.TransferEventExchange = "remit.events"
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisFXCachePrefix = strings.TrimSpace(config.RedisFXCachePrefix)
	if config.RedisFXCachePrefix == "" {
		config.RedisFXCachePrefix = "remit:fx"
	}

	if config.FXCacheTTLMinutes <= 0 {
		config.FXCacheTTLMinutes = 5
	}
	if config.SessionIdleTTLMin <= 0 {
		config.SessionIdleTTLMin = 30
	}

	return
}
