package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "ANIMALDETECT"

type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	DeadLetterStream string
	DeadLetterMaxLen int64
	TrimSchedule     string
}

type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	Region         string
	PublicURL      string
	BucketLabeled  string
	BucketCaptured string
}

type ModelConfig struct {
	URL       string
	Timeout   time.Duration
	FieldName string
}

// PersistConfig sizes the background worker pool behind predict-and-store.
type PersistConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type DetectionConfig struct {
	AutoPersist bool
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Model            ModelConfig
	Persist          PersistConfig
	Detection        DetectionConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

// Missing lists required settings that are still empty after loading.
func (c *AppConfig) Missing() []string {
	var missing []string
	check := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	check("model.url", c.Model.URL)
	check("postgres.dsn", c.Postgres.DSN)
	check("storage.endpoint", c.Storage.Endpoint)
	check("storage.accesskey", c.Storage.AccessKey)
	check("storage.secretkey", c.Storage.SecretKey)
	return missing
}

func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnvs(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindEnvs registers keys without defaults so AutomaticEnv can see them, and
// accepts the variable names the service was originally deployed with.
func bindEnvs(v *viper.Viper) error {
	bindings := map[string][]string{
		"http.port":         {"PORT"},
		"model.url":         {"MODEL_URL"},
		"postgres.dsn":      {"DATABASE_URL"},
		"storage.endpoint":  {"SUPABASE_URL"},
		"storage.accesskey": {},
		"storage.secretkey": {"SUPABASE_SERVICE_KEY"},
		"storage.publicurl": {},
		"redis.password":    {},
	}

	for key, aliases := range bindings {
		names := []string{envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		names = append(names, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 5000)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "150s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxuploadbytes", 10<<20)

	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.deadletterstream", "detections:deadletter")
	v.SetDefault("redis.deadlettermaxlen", 10000)
	v.SetDefault("redis.trimschedule", "0 0 3 * * *")

	v.SetDefault("storage.usessl", true)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucketlabeled", "labeled-images")
	v.SetDefault("storage.bucketcaptured", "captured-images")

	v.SetDefault("model.timeout", "120s")
	v.SetDefault("model.fieldname", "image")

	v.SetDefault("persist.workers", 4)
	v.SetDefault("persist.queuesize", 256)
	v.SetDefault("persist.timeout", "60s")

	v.SetDefault("detection.autopersist", true)

	v.SetDefault("logging.level", "")
	v.SetDefault("allowcorsorigins", []string{})
}
