package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvLocal окружение, в котором хранилище может работать в памяти
const EnvLocal = "local"

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port            string        `mapstructure:"port" validate:"required"`
		Env             string        `mapstructure:"env" validate:"oneof=local development staging production"`
		LogLevel        string        `mapstructure:"logLevel"`
		ReadTimeout     time.Duration `mapstructure:"readTimeout"`
		WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"app"`
	Database struct {
		DSN            string `mapstructure:"dsn"`
		MigrateOnStart bool   `mapstructure:"migrateOnStart"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers      []string `mapstructure:"brokers"`
		Topic        string   `mapstructure:"topic"`
		ClientID     string   `mapstructure:"clientId"`
		EnsureTopics bool     `mapstructure:"ensureTopics"`
	} `mapstructure:"kafka"`
	Stripe struct {
		APIKey                  string `mapstructure:"apiKey" validate:"required"`
		WebhookSecret           string `mapstructure:"webhookSecret" validate:"required"`
		CustomPaymentMethodType string `mapstructure:"customPaymentMethodType"`
		BaseURL                 string `mapstructure:"baseURL" validate:"omitempty,url"`
	} `mapstructure:"stripe"`
	Conekta struct {
		PrivateKey    string        `mapstructure:"privateKey" validate:"required"`
		WebhookSecret string        `mapstructure:"webhookSecret"`
		BaseURL       string        `mapstructure:"baseURL" validate:"omitempty,url"`
		APIVersion    string        `mapstructure:"apiVersion"`
		Timeout       time.Duration `mapstructure:"timeout"`
	} `mapstructure:"conekta"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret" validate:"required,min=16"`
	} `mapstructure:"auth"`
	Webhook struct {
		PendingLease time.Duration `mapstructure:"pendingLease" validate:"gt=0"`
	} `mapstructure:"webhook"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.readTimeout", 15*time.Second)
	v.SetDefault("app.writeTimeout", 15*time.Second)
	v.SetDefault("app.shutdownTimeout", 30*time.Second)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrateOnStart", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "billing.subscription_events")
	v.SetDefault("kafka.clientId", "subscription-reconciler")
	v.SetDefault("kafka.ensureTopics", true)

	v.SetDefault("stripe.apiKey", "")
	v.SetDefault("stripe.webhookSecret", "")
	v.SetDefault("stripe.customPaymentMethodType", "")
	v.SetDefault("stripe.baseURL", "")

	v.SetDefault("conekta.privateKey", "")
	v.SetDefault("conekta.webhookSecret", "")
	v.SetDefault("conekta.baseURL", "")
	v.SetDefault("conekta.apiVersion", "2.0.0")
	v.SetDefault("conekta.timeout", 30*time.Second)

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("webhook.pendingLease", 10*time.Minute)
}

// LoadConfig загружает конфигурацию из config.yml и переменных окружения.
// Вне production сначала подгружается .env из envPath (если файл есть).
// Переменные окружения переопределяют файл: stripe.apiKey -> STRIPE_APIKEY.
func LoadConfig(envPath string, configPaths ...string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" && envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{".", "./config"}
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Чтение переменных окружения

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if brokers := v.GetStringSlice("kafka.brokers"); len(brokers) == 1 && strings.Contains(brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные поля
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Database.DSN == "" && c.App.Env != EnvLocal {
		return fmt.Errorf("invalid config: database.dsn is required outside the %s environment", EnvLocal)
	}
	if c.Conekta.WebhookSecret == "" && c.App.Env != EnvLocal {
		return fmt.Errorf("invalid config: conekta.webhookSecret is required outside the %s environment", EnvLocal)
	}
	return nil
}

// UsesMemoryStore сообщает, что приложение работает без PostgreSQL
func (c *Config) UsesMemoryStore() bool {
	return c.App.Env == EnvLocal && c.Database.DSN == ""
}
