package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/controller"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/dto"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/api/route"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/authority"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/certificate"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/idempotency"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/repository"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/repository/memory"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/storage"
	"github.com/hugohenrick/erp-veterinaria/internal/adapter/xsd"
	appfiscal "github.com/hugohenrick/erp-veterinaria/internal/application/fiscal"
	domain "github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	"github.com/hugohenrick/erp-veterinaria/internal/infrastructure/config"
	"github.com/hugohenrick/erp-veterinaria/internal/infrastructure/database"
	"github.com/hugohenrick/erp-veterinaria/pkg/auth"
	"github.com/hugohenrick/erp-veterinaria/pkg/clock"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
	"github.com/hugohenrick/erp-veterinaria/pkg/secret"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	version = "1.0.0"

	devSecretKey = "erp-veterinaria-dev"
)

// App representa a aplicação e suas dependências
type App struct {
	cfg       *config.Config
	logger    logger.Logger
	server    *http.Server
	db        *pgxpool.Pool
	redis     *redis.Client
	validator *xsd.Validator
	reclaimer *appfiscal.Reclaimer
}

// persistence agrupa os repositórios escolhidos pelo driver
type persistence struct {
	configs   domain.ConfigRepository
	documents domain.DocumentRepository
	invoices  domain.InvoiceStore
}

// NewApp cria uma nova instância do aplicativo
func NewApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: log}
	clk := clock.Real{}
	health := map[string]route.HealthCheck{}

	store, err := app.setupPersistence(ctx, clk, health)
	if err != nil {
		app.Close()
		return nil, err
	}

	idem, err := app.setupIdempotency(ctx, clk, health)
	if err != nil {
		app.Close()
		return nil, err
	}

	deps := appfiscal.Dependencies{
		Configs:   store.configs,
		Documents: store.documents,
		Invoices:  store.invoices,
		Authority: authority.NewResolver(
			authority.NewSimulator(authority.WithLatency(cfg.Fiscal.SimulatorLatency)),
			authority.NewProductionClient(),
		),
		Clock:  clk,
		Logger: log,
	}

	if cfg.Fiscal.XSDPath != "" {
		validator, err := xsd.NewValidator(cfg.Fiscal.XSDPath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("erro ao carregar esquema XSD: %w", err)
		}
		app.validator = validator
		deps.Validator = validator
	}

	if cfg.Storage.Bucket != "" {
		archive, err := storage.NewS3Archive(ctx, cfg.Storage, storage.WithLogger(log))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("erro ao configurar arquivamento S3: %w", err)
		}
		deps.Archive = archive
	}

	secretKey := cfg.Fiscal.SecretKey
	if secretKey == "" {
		log.Warn("fiscal.secret_key não configurada, usando chave de desenvolvimento")
		secretKey = devSecretKey
	}
	box, err := secret.NewBox(secretKey)
	if err != nil {
		app.Close()
		return nil, err
	}

	var jwtService *auth.JWTService
	if cfg.JWT.Secret != "" {
		jwtService, err = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
		if err != nil {
			app.Close()
			return nil, err
		}
	} else {
		log.Warn("jwt.secret não configurado, tenant resolvido apenas pelo cabeçalho tenant-id")
	}

	if err := dto.RegisterValidators(); err != nil {
		app.Close()
		return nil, err
	}

	configService := appfiscal.NewConfigService(store.configs, certificate.NewInspector(), box, clk, log)
	nfeService := appfiscal.NewNFeService(deps, appfiscal.Options{
		AuthorityTimeout:     cfg.Fiscal.AuthorityTimeout,
		MaxAttempts:          cfg.Fiscal.MaxAttempts,
		StaleProcessingAfter: cfg.Fiscal.StaleProcessingAfter,
		CancellationWindow:   cfg.Fiscal.CancellationWindow,
	})
	app.reclaimer = appfiscal.NewReclaimer(nfeService, cfg.Fiscal.ReclaimInterval, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := route.SetupRouter(route.RouterConfig{
		Logger:           log,
		FiscalController: controller.NewFiscalController(configService, log, cfg.HTTP.MaxUploadSize),
		NFeController:    controller.NewNFeController(nfeService, log, cfg.HTTP.MaxTransmitTimeout()),
		Idempotency:      idem,
		IdempotencyTTL:   cfg.Redis.IdempotencyTTL,
		JWTService:       jwtService,
		CORSAllowOrigins: cfg.HTTP.CORSAllowOrigins,
		SwaggerEnabled:   cfg.HTTP.SwaggerEnabled,
		Health:           health,
		Version:          version,
	})
	router.MaxMultipartMemory = cfg.HTTP.MaxUploadSize

	app.server = &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return app, nil
}

func (a *App) setupPersistence(ctx context.Context, clk clock.Clock, health map[string]route.HealthCheck) (*persistence, error) {
	if a.cfg.Database.Driver == config.DriverMemory {
		a.logger.Warn("Usando persistência em memória; dados serão perdidos ao reiniciar")
		return &persistence{
			configs:   memory.NewConfigRepository(clk),
			documents: memory.NewDocumentRepository(),
			invoices:  memory.NewInvoiceStore(),
		}, nil
	}

	pgCfg := a.cfg.Database.Postgres
	if a.cfg.Database.AutoMigrate {
		if err := database.RunMigrations(pgCfg.ConnectionString(), a.cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("erro ao executar migrações: %w", err)
		}
		a.logger.Info("Migrações aplicadas", "path", a.cfg.Database.MigrationsPath)
	}

	pool, err := database.NewPostgresPool(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	a.db = pool
	health["database"] = pool.Ping

	return &persistence{
		configs:   repository.NewFiscalConfigRepository(pool),
		documents: repository.NewFiscalDocumentRepository(pool),
		invoices:  repository.NewInvoiceRepository(pool),
	}, nil
}

func (a *App) setupIdempotency(ctx context.Context, clk clock.Clock, health map[string]route.HealthCheck) (idempotency.Store, error) {
	if a.cfg.Redis.Addr == "" {
		return idempotency.NewMemoryStore(clk), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("erro ao conectar no redis: %w", err)
	}
	a.redis = client
	health["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	return idempotency.NewRedisStore(client, a.cfg.App.Name+":idempotency:"), nil
}

// Run inicia o servidor HTTP e o worker de recuperação; bloqueia até ctx ser cancelado
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.reclaimer.Run(workerCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Servidor iniciado", "addr", a.server.Addr, "env", a.cfg.App.Env)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Encerrando servidor")
	case err := <-serverErr:
		runErr = fmt.Errorf("erro no servidor HTTP: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Falha ao encerrar servidor", "error", err)
	}

	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(a.cfg.HTTP.ShutdownTimeout):
		a.logger.Warn("Worker de recuperação não terminou a tempo")
	}

	return runErr
}

// Close libera os recursos da aplicação
func (a *App) Close() {
	if a.validator != nil {
		a.validator.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Falha ao fechar conexão redis", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
