/**
 * @description
 * This file handles configuration management for the settlement engine. It
 * loads settings from environment variables, providing defaults for timing
 * constants so that only the deployment-specific values are mandatory.
 * Addresses, endpoints, and timing constants are configuration inputs, not
 * part of the settlement algorithm.
 */
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the settlement engine.
type Config struct {
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	RabbitMQURL     string `mapstructure:"RABBITMQ_URL"`
	ChainGatewayURL string `mapstructure:"CHAIN_GATEWAY_URL"`
	DepositAddress  string `mapstructure:"DEPOSIT_ADDRESS"`
	TokenDecimals   int    `mapstructure:"TOKEN_DECIMALS"`

	SettlementJobSchedule    string `mapstructure:"SETTLEMENT_JOB_SCHEDULE"`
	AttributionWindowMinutes int    `mapstructure:"ATTRIBUTION_WINDOW_MINUTES"`
	TransferLookbackHours    int    `mapstructure:"TRANSFER_LOOKBACK_HOURS"`
	ActivationDwellHours     int    `mapstructure:"ACTIVATION_DWELL_HOURS"`
	IntentTTLHours           int    `mapstructure:"INTENT_TTL_HOURS"`
	ChainRPCTimeoutSeconds   int    `mapstructure:"CHAIN_RPC_TIMEOUT_SECONDS"`
	CycleTimeoutMinutes      int    `mapstructure:"CYCLE_TIMEOUT_MINUTES"`
	RunSweepOnStart          bool   `mapstructure:"RUN_SWEEP_ON_START"`

	Port                 string `mapstructure:"PORT"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`
	NotificationExchange string `mapstructure:"NOTIFICATION_EXCHANGE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SETTLEMENT_JOB_SCHEDULE", "0 0 * * *") // Daily at midnight.
	viper.SetDefault("ATTRIBUTION_WINDOW_MINUTES", 30)
	viper.SetDefault("TRANSFER_LOOKBACK_HOURS", 24)
	viper.SetDefault("ACTIVATION_DWELL_HOURS", 24)
	viper.SetDefault("INTENT_TTL_HOURS", 24)
	viper.SetDefault("CHAIN_RPC_TIMEOUT_SECONDS", 15)
	viper.SetDefault("CYCLE_TIMEOUT_MINUTES", 10)
	viper.SetDefault("TOKEN_DECIMALS", 6)
	viper.SetDefault("RUN_SWEEP_ON_START", false)
	viper.SetDefault("PORT", "8086")
	viper.SetDefault("NOTIFICATION_EXCHANGE", "settlement.events")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("CHAIN_GATEWAY_URL")
	_ = viper.BindEnv("DEPOSIT_ADDRESS")
	_ = viper.BindEnv("INTERNAL_API_KEY")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if config.ChainGatewayURL == "" {
		return nil, fmt.Errorf("CHAIN_GATEWAY_URL is required")
	}
	if config.DepositAddress == "" {
		return nil, fmt.Errorf("DEPOSIT_ADDRESS is required")
	}

	return &config, nil
}

// AttributionWindow is the half-width of the symmetric intent matching window.
func (c Config) AttributionWindow() time.Duration {
	return time.Duration(c.AttributionWindowMinutes) * time.Minute
}

// TransferLookback bounds how far back the attribution sweep looks for
// transfers. Past it, an unattributed transfer is permanently unattributable.
func (c Config) TransferLookback() time.Duration {
	return time.Duration(c.TransferLookbackHours) * time.Hour
}

// ActivationDwell is the mandatory delay between funding and activation.
func (c Config) ActivationDwell() time.Duration {
	return time.Duration(c.ActivationDwellHours) * time.Hour
}

// IntentTTL is how long a payment intent stays matchable.
func (c Config) IntentTTL() time.Duration {
	return time.Duration(c.IntentTTLHours) * time.Hour
}

// ChainRPCTimeout bounds each call to the chain gateway.
func (c Config) ChainRPCTimeout() time.Duration {
	return time.Duration(c.ChainRPCTimeoutSeconds) * time.Second
}

// CycleTimeout bounds one full sweep cycle.
func (c Config) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutMinutes) * time.Minute
}
