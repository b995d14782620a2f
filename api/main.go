package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/harlequingg/task-tracker-api/internal/audit"
	"github.com/harlequingg/task-tracker-api/internal/service"
	"github.com/harlequingg/task-tracker-api/internal/stats"
	"github.com/harlequingg/task-tracker-api/internal/storage"
	"github.com/harlequingg/task-tracker-api/internal/storage/memory"
	"github.com/harlequingg/task-tracker-api/internal/storage/mongodb"
	"github.com/harlequingg/task-tracker-api/internal/storage/postgres"
)

const version = "1.0.0"

type config struct {
	port  int
	env   string
	store string
	db    struct {
		dsn                string
		maxOpenConnections int
		maxIdleConnections int
		maxIdleTime        time.Duration
	}
	mongo struct {
		uri      string
		database string
	}
	smtp struct {
		host     string
		port     int
		username string
		password string
		sender   string
	}
	jwt struct {
		secret string
		ttl    time.Duration
	}
	limiter struct {
		enabled             bool
		maxRequestPerSecond float64
		burst               int
	}
	cors struct {
		trustedOrigins []string
	}
	admin struct {
		name     string
		email    string
		password string
	}
	auditTimeout time.Duration
}

type application struct {
	config  config
	logger  *zap.Logger
	store   storage.Store
	auditor *audit.Auditor
	tasks   *service.TaskService
	users   *service.UserService
	stats   *stats.Aggregator
	mailer  *mailer
	now     func() time.Time
}

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func parseConfig(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("task-tracker-api", flag.ContinueOnError)

	fs.IntVar(&cfg.port, "port", envInt("PORT", 3000), "Server Port")
	fs.StringVar(&cfg.env, "env", envString("APP_ENV", "development"), "Environment [development|production]")
	fs.StringVar(&cfg.store, "store", envString("STORE", "memory"), "Storage backend [memory|postgres|mongo]")

	fs.StringVar(&cfg.db.dsn, "db-dsn", os.Getenv("DB_DSN"), "PostgreSQL DSN")
	fs.IntVar(&cfg.db.maxOpenConnections, "db-max-open-conns", 25, "PostgreSQL max open connections")
	fs.IntVar(&cfg.db.maxIdleConnections, "db-max-idle-conns", 25, "PostgreSQL max idle connections")
	fs.DurationVar(&cfg.db.maxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max connection idle time")

	fs.StringVar(&cfg.mongo.uri, "mongo-uri", envString("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	fs.StringVar(&cfg.mongo.database, "mongo-database", envString("MONGO_DATABASE", "tasktracker"), "MongoDB database")

	fs.StringVar(&cfg.smtp.host, "smtp-host", os.Getenv("SMTP_HOST"), "SMTP host; notifications are disabled when empty")
	fs.IntVar(&cfg.smtp.port, "smtp-port", envInt("SMTP_PORT", 587), "SMTP port")
	fs.StringVar(&cfg.smtp.username, "smtp-username", os.Getenv("SMTP_USERNAME"), "SMTP username")
	fs.StringVar(&cfg.smtp.password, "smtp-password", os.Getenv("SMTP_PASSWORD"), "SMTP password")
	fs.StringVar(&cfg.smtp.sender, "smtp-sender", os.Getenv("SMTP_SENDER"), "SMTP sender")

	fs.StringVar(&cfg.jwt.secret, "jwt-secret", os.Getenv("JWT_SECRET"), "JWT secret")
	fs.DurationVar(&cfg.jwt.ttl, "jwt-ttl", time.Hour, "JWT lifetime")

	fs.BoolVar(&cfg.limiter.enabled, "limiter-enabled", true, "Enable rate limiter")
	fs.Float64Var(&cfg.limiter.maxRequestPerSecond, "limiter-rps", 2, "Rate limiter maximum requests per second")
	fs.IntVar(&cfg.limiter.burst, "limiter-burst", 4, "Rate limiter maximum burst")

	fs.StringSliceVar(&cfg.cors.trustedOrigins, "cors-trusted-origins", envList("CORS_TRUSTED_ORIGINS"), "Trusted CORS origins")

	fs.StringVar(&cfg.admin.name, "admin-name", envString("ADMIN_NAME", "Administrator"), "Bootstrap admin name")
	fs.StringVar(&cfg.admin.email, "admin-email", os.Getenv("ADMIN_EMAIL"), "Bootstrap admin email; no admin is created when empty")
	fs.StringVar(&cfg.admin.password, "admin-password", os.Getenv("ADMIN_PASSWORD"), "Bootstrap admin password")

	fs.DurationVar(&cfg.auditTimeout, "audit-timeout", audit.DefaultTimeout, "Timeout of each activity log write")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	switch cfg.store {
	case "memory", "postgres", "mongo":
	default:
		return config{}, fmt.Errorf("invalid value %q for flag --store", cfg.store)
	}
	if cfg.store == "postgres" && cfg.db.dsn == "" {
		return config{}, errors.New("--db-dsn is required with --store=postgres")
	}
	return cfg, nil
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func openStore(cfg config) (storage.Store, error) {
	switch cfg.store {
	case "postgres":
		return postgres.Open(postgres.Config{
			DSN:                cfg.db.dsn,
			MaxOpenConnections: cfg.db.maxOpenConnections,
			MaxIdleConnections: cfg.db.maxIdleConnections,
			MaxIdleTime:        cfg.db.maxIdleTime,
		})
	case "mongo":
		return mongodb.Open(context.Background(), mongodb.Config{
			URI:      cfg.mongo.uri,
			Database: cfg.mongo.database,
		})
	default:
		return memory.New(nil), nil
	}
}

// newApplication wires the services over store. A nil now means
// time.Now.
func newApplication(cfg config, logger *zap.Logger, store storage.Store, now func() time.Time) *application {
	if now == nil {
		now = time.Now
	}
	app := &application{
		config: cfg,
		logger: logger,
		store:  store,
		now:    now,
	}
	app.auditor = audit.New(store, logger, audit.Options{Now: now, Timeout: cfg.auditTimeout})

	var notifier service.Notifier
	if cfg.smtp.host != "" {
		app.mailer = newMailer(cfg.smtp.host, cfg.smtp.port, cfg.smtp.username, cfg.smtp.password, cfg.smtp.sender)
		notifier = app.mailer
	}
	app.tasks = service.NewTaskService(store, store, app.auditor, notifier, logger, now)
	app.users = service.NewUserService(store, 0)
	app.stats = stats.NewAggregator(store, store, store, logger, now)
	return app
}

func run(cfg config, logger *zap.Logger) error {
	if cfg.jwt.secret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		cfg.jwt.secret = string(secret)
		logger.Warn("no JWT secret configured, using a random one; tokens will not survive a restart")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	logger.Info("established a connection with the store", zap.String("store", cfg.store))

	app := newApplication(cfg, logger, store, nil)

	if cfg.admin.email != "" {
		ctx, cancel := context.WithTimeout(context.Background(), storage.QueryTimeout)
		u, err := app.users.EnsureAdmin(ctx, cfg.admin.name, cfg.admin.email, cfg.admin.password)
		cancel()
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		logger.Info("admin account ready", zap.String("email", u.Email))
	}

	return app.serve()
}

func (app *application) serve() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     zap.NewStdLog(app.logger),
	}

	shutdownErr := make(chan error)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit
		app.logger.Info("shutting down server", zap.String("signal", s.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)
		if err == nil {
			err = errors.Join(app.tasks.Close(ctx), app.auditor.Close(ctx))
		}
		shutdownErr <- errors.Join(err, app.store.Close(ctx))
	}()

	app.logger.Info("starting server", zap.String("env", app.config.env), zap.Int("port", app.config.port))
	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return err
	}
	app.logger.Info("stopped server")
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
