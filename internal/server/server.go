// Package server contains the HTTP handlers and wiring for the blog.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quillpost/internal/auth"
	"quillpost/internal/bootstrap"
	"quillpost/internal/cache"
	"quillpost/internal/config"
	"quillpost/internal/mailer"
	"quillpost/internal/middleware"
	"quillpost/internal/notifications"
	"quillpost/internal/publisher"
	"quillpost/internal/repository"
	"quillpost/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const defaultSender = "noreply@quillpost.local"

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	limiter        *middleware.Limiter
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	sessions       *session.Store
	tokens         *auth.SessionTokens
	now            func() time.Time
	mail           mailer.Mailer
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	userRepo       repository.UserRepository
	postRepo       repository.PostRepository
	pictures       *service.PictureService
	userService    *service.UserService
	postService    *service.PostService
	notifier       *notifications.Notifier
	publisher      *publisher.Publisher
}

// Option customizes a Server built by NewServerWithDeps.
type Option func(*Server)

// WithClock replaces time.Now for tokens, posts and the publisher.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithMailer replaces the mailer picked from the configuration.
func WithMailer(m mailer.Mailer) Option {
	return func(s *Server) { s.mail = m }
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SeedDemo: true})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb, opts...)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; caching, Redis sessions and leases are then off.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	s := &Server{
		config: cfg,
		db:     db,
		redis:   redisClient,
		limiter: middleware.NewLimiter(redisClient, cfg.RateLimited()),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.mail == nil {
		m, err := mailer.New(mailer.SMTPConfig{
			Host:     cfg.MailServer,
			Port:     cfg.MailPort,
			Username: cfg.MailUsername,
			Password: cfg.MailPassword,
			UseTLS:   cfg.MailUseTLS,
		}, middleware.Logger)
		if err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
		s.mail = m
	}

	salt, err := auth.NewSalt()
	if err != nil {
		return nil, err
	}

	store := cache.NewStore(redisClient)
	s.userRepo = repository.NewUserRepository(db, store)
	s.postRepo = repository.NewPostRepository(db, store)
	s.tokens = auth.NewSessionTokens(cfg.SecretKey, s.now)
	s.pictures = service.NewPictureService(cfg.UploadDir, cfg.MaxUploadMB)

	sender := cfg.MailSender
	if sender == "" {
		sender = cfg.MailUsername
	}
	if sender == "" {
		sender = defaultSender
	}
	s.userService = service.NewUserService(
		s.userRepo,
		auth.NewResetTokens(cfg.SecretKey, salt, cfg.ResetTokenTTL, s.now),
		s.mail,
		s.pictures,
		service.UserServiceOptions{BaseURL: cfg.BaseURL, Sender: sender},
	)
	s.postService = service.NewPostService(s.postRepo, s.userRepo, s.now)

	s.notifier = notifications.NewNotifier(redisClient)
	s.publisher = publisher.New(s.postRepo, publisher.Options{
		Interval: cfg.PublishInterval,
		Now:      s.now,
		Lease:    store,
		Events:   s.notifier,
		Logger:   middleware.Logger,
	})

	sessCfg := session.Config{
		Expiration:     cfg.SessionTTL,
		KeyLookup:      "cookie:quillpost_session",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.IsProduction(),
		CookieSameSite: "Lax",
	}
	if st := cache.NewSessionStorage(redisClient); st != nil {
		sessCfg.Storage = st
	}
	s.sessions = session.New(sessCfg)

	s.promMiddleware = middleware.InitMetrics("quillpost")
	return s, nil
}

// Publisher returns the scheduled-post publisher wired to this server.
func (s *Server) Publisher() *publisher.Publisher {
	return s.publisher
}

// App returns the configured Fiber application, building it on first use.
func (s *Server) App() *fiber.App {
	if s.app == nil {
		s.app = s.newApp()
	}
	return s.app
}

func (s *Server) newApp() *fiber.App {
	uploadMB := s.config.MaxUploadMB
	if uploadMB <= 0 {
		uploadMB = service.DefaultPictureMaxSizeMB
	}
	app := fiber.New(fiber.Config{
		AppName:      "Quillpost",
		Views:        newViews(),
		ViewsLayout:  "layouts/main",
		ErrorHandler: s.errorHandler,
		BodyLimit:    (uploadMB + 1) << 20,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Context Middleware to propagate Request ID and trace ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	if s.config.IsProduction() {
		app.Use(limiter.New(limiter.Config{
			Max:        300,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return fiber.ErrTooManyRequests
			},
		}))
	}

	csrfCfg := csrf.Config{
		KeyLookup:      "form:" + csrfFormField,
		CookieName:     "quillpost_csrf",
		CookieSameSite: "Lax",
		CookieHTTPOnly: true,
		CookieSecure:   s.config.IsProduction(),
		Expiration:     2 * time.Hour,
		ContextKey:     csrfContextKey,
		Next: func(c *fiber.Ctx) bool {
			return s.config.Env == "test"
		},
	}
	// tokens share the session keyspace in Redis
	if st := cache.NewSessionStorage(s.redis); st != nil {
		csrfCfg.Storage = st
	}
	app.Use(csrf.New(csrfCfg))

	app.Use(middleware.LoadPrincipal(s.tokens, s.userRepo))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Get("/metrics/dashboard", s.loginRequired(), monitor.New(monitor.Config{
		Title: "Quillpost Metrics Dashboard",
	}))

	app.Static("/static/profile_pics", s.pictures.Dir(), fiber.Static{MaxAge: 3600})

	for _, path := range []string{"/", "/home"} {
		app.Get(path, s.Home)
		app.Post(path, s.Home)
	}
	searchLimit := s.limiter.Handler(30, time.Minute, "search")
	app.Get("/search", searchLimit, s.Search)
	app.Post("/search", searchLimit, s.Search)

	app.Get("/announcements", s.Announcements)
	app.Get("/dev", s.Dev)
	app.Get("/Landing-Page", s.LandingPage)

	// Guest-only auth routes
	guest := s.guestOnly()
	app.Get("/register", guest, s.RegisterForm)
	app.Post("/register", guest, s.limiter.Handler(5, 10*time.Minute, "register"), s.Register)
	app.Get("/login", guest, s.LoginForm)
	app.Post("/login", guest, s.limiter.HandlerWithPolicy(10, 5*time.Minute, middleware.FailClosed, "login"), s.Login)
	app.Get("/reset_password", guest, s.ResetRequestForm)
	app.Post("/reset_password", guest, s.limiter.HandlerWithPolicy(5, 10*time.Minute, middleware.FailClosed, "reset_password"), s.ResetRequest)
	app.Get("/reset_password/:token", guest, s.ResetPasswordForm)
	app.Post("/reset_password/:token", guest, s.ResetPassword)
	app.Get("/logout", s.Logout)

	app.Get("/user/:username", s.UserPosts)
	app.Get("/post/:id", s.ShowPost)

	// Protected routes
	protected := s.loginRequired()
	app.Get("/account", protected, s.AccountForm)
	app.Post("/account", protected, s.UpdateAccount)
	app.Get("/user/:id/delete", protected, s.DeleteAccountConfirm)
	app.Post("/user/:id/delete", protected, s.DeleteAccount)

	app.Get("/new/post", protected, s.NewPostForm)
	app.Post("/new/post", protected, s.CreatePost)
	app.Get("/new/scheduled/post", protected, s.ScheduledPostForm)
	app.Post("/new/scheduled/post", protected, s.CreateScheduledPost)
	app.Get("/post/:id/update", protected, s.UpdatePostForm)
	app.Post("/post/:id/update", protected, s.UpdatePost)
	app.Get("/post/:id/delete", protected, s.DeletePostConfirm)
	app.Post("/post/:id/delete", protected, s.DeletePost)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck pings the database and, when configured, Redis.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now().UTC(),
	})
}

// Start runs the background loops and serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	if err := s.pictures.EnsureDefault(); err != nil {
		return err
	}

	app := s.App()

	if s.config.PublisherMode == config.PublisherEmbedded {
		go s.publisher.Run(ctx)
	}

	if s.redis != nil {
		go func() {
			err := s.notifier.StartPostSubscriber(ctx, func(ev notifications.PostEvent) {
				middleware.Logger.Info("post event",
					slog.String("type", ev.Type),
					slog.Uint64("post_id", uint64(ev.PostID)),
					slog.Uint64("user_id", uint64(ev.UserID)),
				)
			})
			if err != nil && ctx.Err() == nil {
				middleware.Logger.Error("post event subscriber stopped", slog.Any("error", err))
			}
		}()
	}

	middleware.Logger.Info("Server starting",
		slog.String("port", s.config.Port),
		slog.String("publisher_mode", s.config.PublisherMode),
	)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.Any("error", err))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.Any("error", cerr))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.Any("error", rerr))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
