package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Mongo configuration.
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr             string `mapstructure:"REDIS_ADDR"`
	RedisPassword         string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB          int    `mapstructure:"REDIS_CACHE_DB"`
	RedisLifecycleQueueDB int    `mapstructure:"REDIS_LIFECYCLE_QUEUE_DB"`

	// Stripe webhook verification.
	StripeKey           string `mapstructure:"STRIPE_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	// Room (video session) service.
	RoomServiceURL    string `mapstructure:"ROOM_SERVICE_URL"`
	RoomServiceAPIKey string `mapstructure:"ROOM_SERVICE_API_KEY"`

	// Firebase push notifications.
	FirebaseServiceAccountKeyPath string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_KEY_PATH"`

	// Earnings and cancellation policy.
	DefaultCommissionRate float64 `mapstructure:"DEFAULT_COMMISSION_RATE"`
	FundsLockHours        int     `mapstructure:"FUNDS_LOCK_HOURS"`
	MinPayoutCents        int64   `mapstructure:"MIN_PAYOUT_CENTS"`
	MinCancelNoticeHours  int     `mapstructure:"MIN_CANCEL_NOTICE_HOURS"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "sereno")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_LIFECYCLE_QUEUE_DB", 3)
	viper.SetDefault("ROOM_SERVICE_URL", "http://localhost:7880")
	viper.SetDefault("DEFAULT_COMMISSION_RATE", 20.0)
	viper.SetDefault("FUNDS_LOCK_HOURS", 48)
	viper.SetDefault("MIN_PAYOUT_CENTS", 1000)
	viper.SetDefault("MIN_CANCEL_NOTICE_HOURS", 24)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
