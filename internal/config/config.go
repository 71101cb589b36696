package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Adjustment policies. Whether ADJUSTMENT entries net into the spendable
// balance is a business decision, so it is configuration rather than code.
const (
	AdjustmentPolicyIgnore = "ignore"
	AdjustmentPolicyCredit = "credit"
	AdjustmentPolicyDebit  = "debit"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LeadEvents       string `mapstructure:"lead_events"`
	WithdrawalEvents string `mapstructure:"withdrawal_events"`
}

// BusinessConfig holds the referral program rules.
//
// RewardRates maps a property type (lowercased) to a reward in currency
// minor units; DefaultReward applies when the lead's property type is
// missing or unmapped. The rate table is consulted once, at the
// INSTALLED transition.
type BusinessConfig struct {
	DuplicateWindowDays int              `mapstructure:"duplicate_window_days"`
	MinWithdrawal       int64            `mapstructure:"min_withdrawal"`
	DefaultReward       int64            `mapstructure:"default_reward"`
	RewardRates         map[string]int64 `mapstructure:"reward_rates"`
	AdjustmentPolicy    string           `mapstructure:"adjustment_policy"`
	MaxRetryCount       int              `mapstructure:"max_retry_count"`
}

// RewardRateFor returns the reward for a lead's property type, falling
// back to the flat default.
func (c *BusinessConfig) RewardRateFor(propertyType string) int64 {
	if c.RewardRates != nil {
		if rate, ok := c.RewardRates[strings.ToLower(propertyType)]; ok {
			return rate
		}
	}
	return c.DefaultReward
}

var GlobalConfig *Config

func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	applyDefaults(&config.Business)

	GlobalConfig = config
	return config
}

func applyDefaults(b *BusinessConfig) {
	if b.DuplicateWindowDays <= 0 {
		b.DuplicateWindowDays = 90
	}
	if b.MinWithdrawal <= 0 {
		b.MinWithdrawal = 1000
	}
	if b.AdjustmentPolicy == "" {
		b.AdjustmentPolicy = AdjustmentPolicyIgnore
	}
	if b.MaxRetryCount <= 0 {
		b.MaxRetryCount = 3
	}
}
