package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/audit"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/config"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/dormancy"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/identity"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/middleware"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/notification"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/rail"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/reconciliation"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/redemption"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/report"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/verification"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/voucher"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Services exposes the long-lived services the scheduler drives outside the
// HTTP request path.
type Services struct {
	Reconciliation *reconciliation.Engine
	Dormancy       *dormancy.Machine
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(d.Logger))

	// Stores, memory-backed in dev when infra is absent
	var (
		auditStore        audit.Store
		identityRepo      identity.Repository
		walletRepo        wallet.Repository
		voucherRepo       voucher.Repository
		redemptionRepo    redemption.Repository
		reconRepo         reconciliation.Repository
		notificationRepo  dormancy.NotificationRepository
		dormancyReports   dormancy.ReportRepository
		statsRepo         report.Repository
		checkLog          report.CheckLog
		verificationStore verification.Store
	)
	if d.DB != nil {
		auditStore = audit.NewPostgresStore(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		voucherRepo = voucher.NewPostgresRepository(d.DB)
		redemptionRepo = redemption.NewPostgresRepository(d.DB)
		reconRepo = reconciliation.NewPostgresRepository(d.DB)
		notificationRepo = dormancy.NewPostgresNotificationRepository(d.DB)
		dormancyReports = dormancy.NewPostgresReportRepository(d.DB)
		statsRepo = report.NewPostgresRepository(d.DB)
		checkLog = report.NewPostgresCheckLog(d.DB)
	} else {
		auditStore = audit.NewMemoryStore()
		identityRepo = identity.NewMemoryRepository()
		walletRepo = wallet.NewMemoryRepository()
		voucherRepo = voucher.NewMemoryRepository()
		redemptionRepo = redemption.NewMemoryRepository()
		reconRepo = reconciliation.NewMemoryRepository()
		notificationRepo = dormancy.NewMemoryNotificationRepository()
		dormancyReports = dormancy.NewMemoryReportRepository()
		statsRepo = report.NewMemoryRepository()
		checkLog = report.StaticCheckLog{}
	}
	if d.Cache != nil {
		verificationStore = verification.NewRedisStore(d.Cache)
	} else {
		verificationStore = verification.NewMemoryStore()
	}

	// Services
	notifier := notification.NewLoggerNotifier(d.Logger)
	recorder := audit.NewRecorder(auditStore, notifier, d.Logger)
	identitySvc := identity.NewService(identityRepo)
	walletSvc := wallet.NewService(walletRepo, recorder)
	tokenSvc := verification.NewTokenService(identityRepo, verificationStore, d.Cfg.VerificationTTL, d.Logger)
	railConn := rail.StaticRail{}

	redemptionSvc := redemption.NewService(redemptionRepo, voucherRepo, walletSvc, tokenSvc,
		railConn, recorder, notifier, d.Cfg.UpstreamTimeout, d.Logger)

	engine := reconciliation.NewEngine(reconRepo, walletRepo, reconciliation.NewMirrorProvider(walletRepo),
		recorder, notifier, d.Cfg.ReserveToleranceCents, d.Cfg.ReconciliationMaxStaleness,
		d.Cfg.UpstreamTimeout, d.Logger)

	machine := dormancy.NewMachine(walletRepo, notificationRepo, dormancyReports, recorder, notifier,
		railConn, dormancy.Thresholds{
			WarningDays:  d.Cfg.DormancyWarningDays,
			DormancyDays: d.Cfg.DormancyThresholdDays,
			HoldDays:     d.Cfg.DormancyHoldDays,
		}, d.Cfg.UpstreamTimeout, d.Logger)

	generator := report.NewGenerator(redemptionRepo, reconRepo, dormancyReports, checkLog, statsRepo, d.Logger)

	// Handlers
	verificationHandler := verification.NewHandler(identitySvc, tokenSvc)
	redemptionHandler := redemption.NewHandler(redemptionSvc)
	reconciliationHandler := reconciliation.NewHandler(engine, redemptionSvc)
	dormancyHandler := dormancy.NewHandler(machine)
	reportHandler := report.NewHandler(generator)

	// API routes
	api := app.Group("/api/v1")
	RegisterHealthRoutes(app, api, d)

	api.Post("/verification/issue", verificationHandler.Issue)

	// Money movement carries the replay cache on top of the transactional
	// idempotency the redemption store enforces.
	var money fiber.Router = api
	if d.Cache != nil {
		money = api.Group("", middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	money.Post("/vouchers/:voucherId/redeem", redemptionHandler.RedeemVoucher)
	money.Post("/wallets/:walletId/redeem", redemptionHandler.RedeemFromWallet)
	api.Get("/redemptions/:transactionId", redemptionHandler.Get)

	// Operator surface
	admin := api.Group("/admin", middleware.AdminAuth(d.Cfg))
	admin.Get("/trust-account/status", reconciliationHandler.Status)
	admin.Post("/trust-account/reconcile", reconciliationHandler.Reconcile)
	admin.Get("/compliance/monthly-stats", reportHandler.Get)
	admin.Post("/compliance/monthly-stats", reportHandler.Generate)

	compliance := api.Group("/compliance", middleware.AdminAuth(d.Cfg))
	compliance.Get("/dormancy", dormancyHandler.Inspect)
	compliance.Post("/dormancy", dormancyHandler.Execute)

	return &Services{Reconciliation: engine, Dormancy: machine}, nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
