package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lexportal/claimshield/pkg/ratelimit"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Defense  DefenseConfig  `mapstructure:"defense"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DefenseConfig is deployment policy for the request-defense layer. The
// trusted header list is explicit configuration: identity extraction only
// consults headers the deployment's proxy chain is known to set.
type DefenseConfig struct {
	Store            string                  `mapstructure:"store"`
	TrustedIPHeaders []string                `mapstructure:"trusted_ip_headers"`
	Policies         map[string]PolicyConfig `mapstructure:"policies"`
}

type PolicyConfig struct {
	MaxRequests int    `mapstructure:"max_requests"`
	Window      string `mapstructure:"window"`
}

// PolicyOverrides converts configured policy entries into limiter policies,
// dropping entries with unparseable windows.
func (d DefenseConfig) PolicyOverrides() map[string]ratelimit.Policy {
	overrides := make(map[string]ratelimit.Policy, len(d.Policies))
	for operation, policy := range d.Policies {
		window, err := time.ParseDuration(policy.Window)
		if err != nil || policy.MaxRequests <= 0 {
			continue
		}
		overrides[operation] = ratelimit.Policy{
			MaxRequests: policy.MaxRequests,
			Window:      window,
		}
	}
	return overrides
}

var globalConfig Config

func Load(configPath string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&globalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaultValues()

	return nil
}

func setDefaultValues() {
	if globalConfig.Server.Port == 0 {
		globalConfig.Server.Port = 8080
	}
	if globalConfig.Server.MetricsPort == 0 {
		globalConfig.Server.MetricsPort = 9090
	}
	if globalConfig.Database.SSLMode == "" {
		globalConfig.Database.SSLMode = "disable"
	}
	if globalConfig.Defense.Store == "" {
		globalConfig.Defense.Store = "postgres"
	}
	if len(globalConfig.Defense.TrustedIPHeaders) == 0 {
		globalConfig.Defense.TrustedIPHeaders = []string{
			"X-Real-IP",
			"X-Forwarded-For",
			"True-Client-IP",
			"CF-Connecting-IP",
		}
	}
}

func GetConfig() *Config {
	return &globalConfig
}
