/**
 * @description
 * This file handles configuration management for the recurring transaction scheduler.
 * It loads settings from environment variables, providing defaults for the cron schedule.
 */
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for the scheduler service.
type Config struct {
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	DatabaseMaxConns        int32  `mapstructure:"DATABASE_MAX_CONNS"`
	ServerPort              string `mapstructure:"SERVER_PORT"`
	InternalAPIKey          string `mapstructure:"INTERNAL_API_KEY"`
	RecurringJobSchedule    string `mapstructure:"RECURRING_JOB_SCHEDULE"`
	BusinessTimezone        string `mapstructure:"BUSINESS_TIMEZONE"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisStatusPrefix       string `mapstructure:"REDIS_STATUS_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	RecurringEventsExchange string `mapstructure:"RECURRING_EVENTS_EXCHANGE"`
}

// Location resolves BusinessTimezone, falling back to UTC when unset.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.BusinessTimezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.BusinessTimezone)
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("RECURRING_JOB_SCHEDULE", "0 2 * * *") // Daily at 02:00.
	viper.SetDefault("BUSINESS_TIMEZONE", "UTC")
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("DATABASE_MAX_CONNS", 10)
	viper.SetDefault("REDIS_STATUS_PREFIX", "expense-tracker:recurring")
	viper.SetDefault("RECURRING_EVENTS_EXCHANGE", "recurring_transactions")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DATABASE_MAX_CONNS")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("RECURRING_JOB_SCHEDULE")
	_ = viper.BindEnv("BUSINESS_TIMEZONE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_STATUS_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RECURRING_EVENTS_EXCHANGE")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.RecurringJobSchedule = strings.TrimSpace(config.RecurringJobSchedule)
	if strings.TrimSpace(config.DatabaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if _, err := cron.ParseStandard(config.RecurringJobSchedule); err != nil {
		return nil, fmt.Errorf("invalid RECURRING_JOB_SCHEDULE %q: %w", config.RecurringJobSchedule, err)
	}
	if _, err := config.Location(); err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", config.BusinessTimezone, err)
	}

	return &config, nil
}
