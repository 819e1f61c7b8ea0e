package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberredis "github.com/gofiber/storage/redis/v3"
	"github.com/prayercircle/prayercircle/internal/archive"
	"github.com/prayercircle/prayercircle/internal/audit"
	"github.com/prayercircle/prayercircle/internal/authflow"
	"github.com/prayercircle/prayercircle/internal/common"
	"github.com/prayercircle/prayercircle/internal/config"
	"github.com/prayercircle/prayercircle/internal/handlers/web"
	"github.com/prayercircle/prayercircle/internal/middlewares"
	"github.com/prayercircle/prayercircle/internal/prayers"
	"github.com/prayercircle/prayercircle/internal/security"
	"github.com/prayercircle/prayercircle/internal/sessions"
	"github.com/prayercircle/prayercircle/internal/store"
	"github.com/prayercircle/prayercircle/internal/system"
	"github.com/prayercircle/prayercircle/internal/users"
	"github.com/prayercircle/prayercircle/model"
	"github.com/prayercircle/prayercircle/params"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "prayercircle - a community prayer board with peer-approved logins"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := db.AutoMigrate(model.Models...); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitCacheStorage(cacheCfg config.CacheConfig) (store.Storage, redis.UniversalClient) {
	switch cacheCfg.Backend {
	case "memory":
		return store.NewMemoryStorage(), nil
	case "redis":
		redisStorage := fiberredis.New(fiberredis.Config{
			URL:           cacheCfg.Redis.URL,
			PoolSize:      cacheCfg.Redis.PoolSize,
			IsClusterMode: cacheCfg.Redis.ClusterMode,
		})
		return store.NewRedisStorage(redisStorage.Conn()), redisStorage.Conn()
	default:
		slog.Error("Unsupported cache backend", "backend", cacheCfg.Backend)
		os.Exit(1)
		return nil, nil
	}
}

// seedDefaultRoles makes sure the built-in roles exist on a fresh database.
func seedDefaultRoles(ctx context.Context, roleRepo users.RoleRepository) error {
	defaults := []model.Role{
		{Name: model.RoleAdmin, Description: "May approve, reject and moderate on behalf of the community"},
		{Name: model.RoleDeactivated, Description: "Account disabled; sessions are revoked on next use"},
	}
	for i := range defaults {
		_, err := roleRepo.ByName(ctx, defaults[i].Name)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := roleRepo.Create(ctx, &defaults[i]); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func setupWebRoutes(
	router fiber.Router,
	cfg *config.Config,
	sessionService *sessions.Service,
	authFlowService *authflow.Service,
	userService *users.UserService,
	prayerService *prayers.Service,
	systemService *system.Service) {

	cookieConfig := web.CookieConfig{
		Name:     cfg.Session.CookieName,
		MaxAge:   cfg.Session.TTL(),
		Secure:   cfg.Session.CookieSecure,
		HttpOnly: cfg.Session.CookieHttpOnly,
	}

	// handlers
	var (
		authHandler   = web.NewAuthHandler(sessionService, authFlowService, userService, systemService, cookieConfig, cfg.Auth.InviteVerificationRequired)
		prayerHandler = web.NewPrayerHandler(sessionService, prayerService, userService)
		adminHandler  = web.NewAdminHandler(sessionService, userService, systemService)
	)

	// routes
	router.Use(middlewares.WithSession(sessionService, cfg.Session.CookieName))
	router.Post("/auth/claim", authHandler.PostClaim)
	router.Get("/auth/status", authHandler.GetStatus)
	router.Post("/auth/logout", authHandler.PostLogout)
	router.Get("/auth/requests", authHandler.GetApprovable)
	router.Post("/auth/requests/:id/approve", authHandler.PostApprove)
	router.Post("/auth/requests/:id/reject", authHandler.PostReject)
	router.Post("/auth/requests/:id/verify-code", authHandler.PostVerifyCode)
	router.Get("/auth/notifications", authHandler.GetNotifications)
	router.Get("/prayers", prayerHandler.GetPrayers)
	router.Post("/prayers", prayerHandler.PostPrayer)
	router.Get("/prayers/:id/activity", prayerHandler.GetActivity)
	router.Post("/prayers/:id/prayed", prayerHandler.PostPrayed)
	router.Post("/prayers/:id/archive", prayerHandler.PostArchive)
	router.Post("/prayers/:id/answer", prayerHandler.PostAnswer)
	router.Post("/invites", adminHandler.PostInvite)
	router.Post("/admin/roles/grant", adminHandler.PostGrantRole)
	router.Post("/admin/roles/revoke", adminHandler.PostRevokeRole)
	router.Get("/admin/flags", adminHandler.GetFeatureFlags)
	router.Post("/admin/flags", adminHandler.PostFeatureFlag)
}

// runMaintenance sweeps expired requests and refreshes the archive
// snapshots on a fixed cadence until ctx is cancelled.
func runMaintenance(
	ctx context.Context,
	cfg *config.Config,
	sessionService *sessions.Service,
	authFlowService *authflow.Service,
	userService *users.UserService,
	systemService *system.Service,
	archiveWriter *archive.Writer) {

	ticker := time.NewTicker(params.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if swept, err := authFlowService.SweepExpired(ctx); err != nil {
			slog.Warn("Expiry sweep failed", "error", err)
		} else if swept > 0 {
			slog.Info("Expired pending authentication requests", "count", swept)
		}

		active, err := sessionService.ListActive(ctx)
		if err != nil {
			slog.Warn("Could not list active sessions", "error", err)
		} else if usernames, err := userService.DisplayNames(ctx); err != nil {
			slog.Warn("Could not resolve display names", "error", err)
		} else if err := archiveWriter.SnapshotSessions(active, usernames); err != nil {
			slog.Warn("Session snapshot failed", "error", err)
		}

		if err := systemService.UpdateInviteTokens(ctx); err != nil {
			slog.Warn("Invite token snapshot failed", "error", err)
		}
		if err := userService.SnapshotRoleDefinitions(ctx); err != nil {
			slog.Warn("Role definitions snapshot failed", "error", err)
		}
		if err := systemService.SnapshotSystemConfig(ctx, configSnapshotEntries(cfg)); err != nil {
			slog.Warn("System config snapshot failed", "error", err)
		}
	}
}

func configSnapshotEntries(cfg *config.Config) [][2]string {
	return [][2]string{
		{"session.ttlDays", strconv.Itoa(cfg.Session.TTLDays)},
		{"auth.multiDeviceEnabled", strconv.FormatBool(cfg.Auth.MultiDeviceEnabled)},
		{"auth.approvalQuorum", strconv.Itoa(cfg.Auth.ApprovalQuorum)},
		{"auth.maxRequestsPerHour", strconv.Itoa(cfg.Auth.MaxRequestsPerHour)},
		{"auth.rateLimitBlock", cfg.Auth.RateLimitBlock.String()},
		{"auth.inviteVerificationRequired", strconv.FormatBool(cfg.Auth.InviteVerificationRequired)},
		{"auth.enforceIPBinding", strconv.FormatBool(cfg.Auth.EnforceIPBinding)},
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	db := mustInitDatabase(cfg.MySQL)
	cacheStorage, redisClient := mustInitCacheStorage(cfg.Cache)
	archiveWriter := archive.New(cfg.Archive.Dir)

	// repositories
	var (
		userRepo     = users.NewUserRepository(db)
		roleRepo     = users.NewRoleRepository(db)
		sessionRepo  = sessions.NewRepository(db)
		authFlowRepo = authflow.NewRepository(db)
		auditRepo    = audit.NewRepository(db)
		securityRepo = security.NewRepository(db)
		prayerRepo   = prayers.NewRepository(db)
		systemRepo   = system.NewRepository(db)
	)

	if err := seedDefaultRoles(ctx.Context, roleRepo); err != nil {
		slog.Error("Could not seed default roles", "error", err)
		return err
	}

	// services
	var (
		recorder       = audit.NewRecorder(auditRepo)
		securityLogger = security.NewLogger(recorder, archiveWriter, cfg.Auth.EnforceIPBinding)
		rateLimiter    = security.NewRateLimiter(
			securityRepo,
			store.StorageWithPrefix(cacheStorage, params.RateLimitBlockKeyPrefix),
			securityLogger,
			cfg.Auth.MaxRequestsPerHour,
			params.RateLimitWindow,
			cfg.Auth.RateLimitBlock,
		)
		userService     = users.NewUserService(userRepo, roleRepo, archiveWriter)
		prayerService   = prayers.NewService(prayerRepo, userService, archiveWriter)
		systemService   = system.NewService(systemRepo, userService, archiveWriter, params.DefaultInviteExpiration)
		authFlowService *authflow.Service
		sessionService  = sessions.NewService(sessionRepo, userService, requestStatusFunc(func(c context.Context, id string) (string, error) {
			return authFlowService.GetRequestStatus(c, id)
		}), securityLogger, cfg.Session.TTL())
	)
	authFlowService = authflow.NewService(authFlowRepo, userService, sessionService, rateLimiter,
		recorder, archiveWriter, authflow.ServiceOptions{
			Quorum:             cfg.Auth.ApprovalQuorum,
			MultiDeviceEnabled: cfg.Auth.MultiDeviceEnabled,
		})

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	setupWebRoutes(router, cfg, sessionService, authFlowService, userService, prayerService, systemService)

	backgroundCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(backgroundCtx, done, redisClient, db)
	go runMaintenance(backgroundCtx, cfg, sessionService, authFlowService, userService, systemService, archiveWriter)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

// requestStatusFunc breaks the session/authflow construction cycle: the
// session service needs request statuses, the auth flow service needs
// session vouching.
type requestStatusFunc func(ctx context.Context, requestID string) (string, error)

func (f requestStatusFunc) GetRequestStatus(ctx context.Context, requestID string) (string, error) {
	return f(ctx, requestID)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
