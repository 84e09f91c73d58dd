package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"docvault-backend/internal/auth"
	"docvault-backend/internal/documents"
	"docvault-backend/internal/ingestion"
	"docvault-backend/internal/queue"
	"docvault-backend/internal/services/health"
	"docvault-backend/internal/shared/config"
	sharedauth "docvault-backend/internal/shared/auth"
	"docvault-backend/internal/shared/server"
	"docvault-backend/internal/shared/storage/cache"
	"docvault-backend/internal/shared/storage/db"
	"docvault-backend/internal/shared/storage/object"
	localstore "docvault-backend/internal/shared/storage/object/local"
	s3store "docvault-backend/internal/shared/storage/object/s3"
	"docvault-backend/internal/shared/telemetry"
	"docvault-backend/internal/users"
	"docvault-backend/internal/workerproc"
)

// App holds shared dependencies and the assembled router.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Redis  *redis.Client
	Store  object.ObjectStore
	Tokens *sharedauth.Issuer
	Health *health.Service

	DocumentsRepo documents.DocumentsRepo
	UsersRepo     users.Repo
	IngestionRepo ingestion.Repo

	DocumentsService *documents.Service
	UsersService     *users.Service
	IngestionService *ingestion.Service

	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	DocumentsHandler *documents.Handler
	IngestionHandler *ingestion.Handler

	// Timers is set when completions run in-process.
	Timers      *ingestion.TimerScheduler
	QueueClient queue.Client
	Worker      *asynq.Server
	Sweeper     *ingestion.Sweeper
}

// Build prepares shared dependencies and wires routes. Background work
// (sweeper, embedded worker) starts only when Start is called.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	if strings.TrimSpace(cfg.IngestionScheduler) == "" {
		cfg.IngestionScheduler = config.SchedulerTimer
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := sharedauth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("jwt issuer: %w", err)
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Tokens: tokens,
		Health: health.NewService(),
	}

	if cfg.IngestionScheduler == config.SchedulerAsynq {
		if err := buildQueue(ctx, app); err != nil {
			return nil, err
		}
	}

	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}
	registerChecks(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           app.Config,
		Verifier:         app.Tokens,
		Health:           app.Health,
		AuthHandler:      app.AuthHandler,
		UsersHandler:     app.UsersHandler,
		DocumentsHandler: app.DocumentsHandler,
		IngestionHandler: app.IngestionHandler,
	})

	return app, nil
}

// Start launches the stale-log sweeper and, when configured, the embedded
// queue worker.
func (a *App) Start() error {
	if a.Sweeper != nil {
		if err := a.Sweeper.Start(a.Config.IngestionSweepSchedule); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
	}
	if a.Worker != nil {
		if err := a.Worker.Start(workerproc.NewMux(a.IngestionService)); err != nil {
			return fmt.Errorf("start embedded worker: %w", err)
		}
	}
	return nil
}

// Close stops background work and releases connections.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.Timers != nil {
		a.Timers.Stop()
	}
	if a.Worker != nil {
		a.Worker.Shutdown()
	}
	var errs []error
	if a.QueueClient != nil {
		errs = append(errs, a.QueueClient.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.DefaultServerOptions()
	if cfg.DBMaxOpenConns > 0 {
		opts.MaxOpenConns = cfg.DBMaxOpenConns
	}
	if cfg.DBMaxIdleConns > 0 {
		opts.MaxIdleConns = cfg.DBMaxIdleConns
	}
	if cfg.DBConnMaxLife > 0 {
		opts.ConnMaxLifetime = cfg.DBConnMaxLife
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, app *App) error {
	cfg := app.Config
	rdb, err := cache.Connect(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	opts := queue.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client, err := queue.NewAsynqClient(opts)
	if err != nil {
		_ = rdb.Close()
		return err
	}
	app.Redis = rdb
	app.QueueClient = client
	if cfg.IngestionEmbeddedWorker {
		app.Worker = workerproc.NewServer(opts, cfg.WorkerConcurrency)
	}
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}

func buildServices(ctx context.Context, app *App) error {
	var (
		docRepo       documents.DocumentsRepo
		userRepo      users.Repo
		ingestionRepo ingestion.Repo
	)
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
		ingestionRepo = &ingestion.PGRepo{DB: app.DB}
	} else {
		docRepo = documents.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
		ingestionRepo = ingestion.NewMemoryRepo(docRepo, userRepo)
	}

	userSvc := users.NewService(userRepo)
	ingestionSvc := &ingestion.Service{
		Repo:       ingestionRepo,
		Documents:  docRepo,
		Users:      userRepo,
		Resolver:   ingestion.NewResolver(app.Config.IngestionMode),
		Delay:      app.Config.IngestionDelay,
		RetryRearm: app.Config.IngestionRetryRearm,
	}
	if app.QueueClient != nil {
		ingestionSvc.Scheduler = &queue.AsynqScheduler{Client: app.QueueClient}
	} else {
		app.Timers = ingestion.NewTimerScheduler(ingestionSvc)
		ingestionSvc.Scheduler = app.Timers
	}
	docSvc := &documents.Service{
		Store: app.Store,
		Repo:  docRepo,
		Logs:  ingestionSvc,
	}

	app.Sweeper = &ingestion.Sweeper{
		Repo:       ingestionRepo,
		Scheduler:  ingestionSvc.Scheduler,
		Delay:      app.Config.IngestionDelay,
		StaleAfter: app.Config.IngestionStaleAfter,
	}

	app.DocumentsRepo = docRepo
	app.UsersRepo = userRepo
	app.IngestionRepo = ingestionRepo
	app.DocumentsService = docSvc
	app.UsersService = userSvc
	app.IngestionService = ingestionSvc
	app.AuthHandler = auth.NewHandler(userSvc, app.Tokens)
	app.UsersHandler = users.NewHandler(userSvc)
	app.DocumentsHandler = documents.NewHandler(docSvc)
	app.IngestionHandler = ingestion.NewHandler(ingestionSvc)

	if app.DB == nil && app.Config.SeedAdminEmail != "" {
		if _, err := userSvc.EnsureAdmin(ctx, app.Config.SeedAdminEmail, app.Config.SeedAdminPassword); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		telemetry.Info("bootstrap.admin_seeded", map[string]any{"email": app.Config.SeedAdminEmail})
	}
	return nil
}

func registerChecks(app *App) {
	if app.DB != nil {
		app.Health.Register("postgres", app.DB.PingContext)
	}
	if app.Redis != nil {
		rdb := app.Redis
		app.Health.Register("redis", func(ctx context.Context) error {
			return cache.Ping(ctx, rdb)
		})
	}
}
