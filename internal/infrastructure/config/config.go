// Package config carrega a configuração da aplicação a partir de config.toml e variáveis APP_*.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugohenrick/erp-veterinaria/internal/infrastructure/database"
	"github.com/spf13/viper"
)

// responseMargin é o tempo reservado para escrever a resposta após a chamada à SEFAZ
const responseMargin = 5 * time.Second

// Drivers de persistência suportados
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config reúne todas as seções de configuração
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	JWT      JWTConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Fiscal   FiscalConfig
}

// AppConfig contém os dados gerais da aplicação
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig contém o driver e a conexão PostgreSQL
type DatabaseConfig struct {
	Driver         string
	MigrationsPath string
	AutoMigrate    bool
	Postgres       database.PostgresConfig
}

// RedisConfig contém a conexão Redis usada pela idempotência; Addr vazio usa memória
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// StorageConfig contém o bucket S3 para arquivamento dos XML autorizados; Bucket vazio desliga
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// JWTConfig contém as configurações de validação do token
type JWTConfig struct {
	Secret string
	Issuer string
}

// LogConfig contém o nível, formato e destino dos logs
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// HTTPConfig contém timeouts do servidor e CORS
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	MaxUploadSize    int64
	CORSAllowOrigins []string
	SwaggerEnabled   bool
}

// FiscalConfig contém os parâmetros do ciclo de vida da NFe
type FiscalConfig struct {
	AuthorityTimeout     time.Duration
	MaxAttempts          int
	StaleProcessingAfter time.Duration
	CancellationWindow   time.Duration
	ReclaimInterval      time.Duration
	SecretKey            string
	XSDPath              string
	SimulatorLatency     time.Duration
}

// Load lê config.toml (opcional) e aplica as variáveis de ambiente com prefixo APP_.
// Prioridade: variáveis de ambiente, config.toml, valores padrão.
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if len(paths) == 0 {
		paths = []string{".", "/app"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("erro ao ler arquivo de configuração: %w", err)
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:         v.GetString("database.driver"),
			MigrationsPath: v.GetString("database.migrations_path"),
			AutoMigrate:    v.GetBool("database.auto_migrate"),
			Postgres: database.PostgresConfig{
				URL:             v.GetString("database.url"),
				Host:            v.GetString("database.host"),
				Port:            v.GetInt("database.port"),
				User:            v.GetString("database.user"),
				Password:        v.GetString("database.password"),
				Database:        v.GetString("database.name"),
				SSLMode:         v.GetString("database.sslmode"),
				MaxConnections:  v.GetInt32("database.max_connections"),
				MinConnections:  v.GetInt32("database.min_connections"),
				MaxConnLifetime: v.GetDuration("database.max_conn_lifetime"),
				MaxConnIdleTime: v.GetDuration("database.max_conn_idle_time"),
				ConnectTimeout:  v.GetDuration("database.connect_timeout"),
			},
		},
		Redis: RedisConfig{
			Addr:           v.GetString("redis.addr"),
			Password:       v.GetString("redis.password"),
			DB:             v.GetInt("redis.db"),
			IdempotencyTTL: v.GetDuration("redis.idempotency_ttl"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			MaxUploadSize:    v.GetInt64("http.max_upload_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			SwaggerEnabled:   v.GetBool("http.swagger_enabled"),
		},
		Fiscal: FiscalConfig{
			AuthorityTimeout:     v.GetDuration("fiscal.authority_timeout"),
			MaxAttempts:          v.GetInt("fiscal.max_attempts"),
			StaleProcessingAfter: v.GetDuration("fiscal.stale_processing_after"),
			CancellationWindow:   v.GetDuration("fiscal.cancellation_window"),
			ReclaimInterval:      v.GetDuration("fiscal.reclaim_interval"),
			SecretKey:            v.GetString("fiscal.secret_key"),
			XSDPath:              v.GetString("fiscal.xsd_path"),
			SimulatorLatency:     v.GetDuration("fiscal.simulator_latency"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults preenche os campos não informados
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "erp-veterinaria"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "migrations"
	}
	pg := &cfg.Database.Postgres
	if pg.Host == "" {
		pg.Host = "localhost"
	}
	if pg.Port == 0 {
		pg.Port = 5432
	}
	if pg.User == "" {
		pg.User = "postgres"
	}
	if pg.Database == "" {
		pg.Database = "erp_veterinaria"
	}
	if pg.SSLMode == "" {
		pg.SSLMode = "disable"
	}
	if pg.MaxConnections == 0 {
		pg.MaxConnections = 10
	}
	if pg.MinConnections == 0 {
		pg.MinConnections = 1
	}
	if pg.MaxConnLifetime == 0 {
		pg.MaxConnLifetime = time.Hour
	}
	if pg.MaxConnIdleTime == 0 {
		pg.MaxConnIdleTime = 30 * time.Minute
	}

	if cfg.Redis.IdempotencyTTL == 0 {
		cfg.Redis.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}

	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "erp-veterinaria"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// Transmissão pode levar até o timeout da autoridade
		cfg.HTTP.WriteTimeout = 90 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if cfg.HTTP.MaxUploadSize == 0 {
		cfg.HTTP.MaxUploadSize = 1 << 20
	}
	if len(cfg.HTTP.CORSAllowOrigins) == 0 {
		cfg.HTTP.CORSAllowOrigins = []string{"*"}
	}

	if cfg.Fiscal.AuthorityTimeout == 0 {
		cfg.Fiscal.AuthorityTimeout = 30 * time.Second
	}
	if cfg.Fiscal.MaxAttempts == 0 {
		cfg.Fiscal.MaxAttempts = 3
	}
	if cfg.Fiscal.StaleProcessingAfter == 0 {
		cfg.Fiscal.StaleProcessingAfter = 2 * time.Minute
	}
	if cfg.Fiscal.CancellationWindow == 0 {
		cfg.Fiscal.CancellationWindow = 24 * time.Hour
	}
	if cfg.Fiscal.ReclaimInterval == 0 {
		cfg.Fiscal.ReclaimInterval = time.Minute
	}
}

// validate verifica combinações inválidas
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("driver de banco inválido: %s (use postgres ou memory)", c.Database.Driver)
	}

	if c.Fiscal.MaxAttempts < 1 {
		return fmt.Errorf("fiscal.max_attempts deve ser maior que zero")
	}
	if c.Fiscal.AuthorityTimeout < 0 || c.Fiscal.StaleProcessingAfter < 0 || c.Fiscal.CancellationWindow < 0 {
		return fmt.Errorf("durações fiscais não podem ser negativas")
	}
	if c.Fiscal.StaleProcessingAfter <= c.Fiscal.AuthorityTimeout {
		return fmt.Errorf("fiscal.stale_processing_after deve ser maior que fiscal.authority_timeout")
	}

	if c.HTTP.WriteTimeout <= c.Fiscal.AuthorityTimeout+responseMargin {
		return fmt.Errorf("http.write_timeout deve exceder fiscal.authority_timeout em pelo menos %s", responseMargin)
	}

	if c.IsProduction() {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret é obrigatório em produção")
		}
		if c.Fiscal.SecretKey == "" {
			return fmt.Errorf("fiscal.secret_key é obrigatório em produção")
		}
		if c.Database.Driver == DriverMemory {
			return fmt.Errorf("driver memory não é permitido em produção")
		}
	}

	return nil
}

// MaxTransmitTimeout é o maior ?timeout= aceito na transmissão, de forma que a resposta
// ainda caiba no WriteTimeout do servidor
func (h HTTPConfig) MaxTransmitTimeout() time.Duration {
	return h.WriteTimeout - responseMargin
}

// IsProduction indica se a aplicação roda em produção
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
