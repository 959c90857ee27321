package router

import (
	"errors"
	"net/http"

	"cdv-engine/internal/config"
	"cdv-engine/internal/constants"
	"cdv-engine/internal/infrastructure/database"
	certhandler "cdv-engine/internal/interfaces/handlers/certificates"
	healthhandler "cdv-engine/internal/interfaces/handlers/health"
	invhandler "cdv-engine/internal/interfaces/handlers/investors"
	poolhandler "cdv-engine/internal/interfaces/handlers/pool"
	projhandler "cdv-engine/internal/interfaces/handlers/projects"
	quotahandler "cdv-engine/internal/interfaces/handlers/quotas"
	"cdv-engine/internal/metrics"
	"cdv-engine/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	apiPrefix    = "/api/v1/cdv"
	publicPrefix = apiPrefix + "/public"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp opens storage and redis from cfg and mounts every route.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil, errors.New("database url is not configured")
	}
	if cfg.RedisURL == "" {
		return nil, nil, nil, errors.New("REDIS_URL is not configured")
	}
	db, err := database.OpenURL(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, nil, err
	}
	rdb, err := middleware.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc := NewServices(cfg, db, metrics.New(reg))

	app := Mount(cfg, svc, db, rdb, reg)
	return app, db, rdb, nil
}

// Mount builds the fiber app on already wired dependencies.
func Mount(cfg *config.Config, svc *Services, db *gorm.DB, rdb *redis.Client, gatherer prometheus.Gatherer) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
		PublicPrefix:  publicPrefix,
	}))
	app.Use(middleware.Session(rdb))
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             &gormDBPinger{db: db},
		Stock:          svc.Pool,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/", hh.JSON)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	ch := &certhandler.Handlers{Service: svc.Certificates, Documents: svc.Documents, Investors: svc.Investors}
	app.Get(publicPrefix+"/certificates/:hash", ch.Validate)

	api := app.Group(apiPrefix, middleware.RequireAuth())
	view := middleware.AuthorizePermission(constants.ViewData)

	// Projects
	ph := &projhandler.Handlers{Ledger: svc.Ledger, Allocation: svc.Allocation, Documents: svc.Documents}
	qh := &quotahandler.Handlers{
		Ledger:       svc.Ledger,
		Coordinator:  svc.Coordinator,
		Allocation:   svc.Allocation,
		Certificates: svc.Certificates,
	}
	pg := api.Group("/projects")
	pg.Post("/", middleware.AuthorizePermission(constants.ManageProjects), ph.Create)
	pg.Get("/", view, ph.List)
	pg.Get("/:id", view, ph.Get)
	pg.Delete("/:id", middleware.AuthorizePermission(constants.ManageProjects), ph.Delete)
	pg.Get("/:id/quotas", view, ph.Quotas)
	pg.Get("/:id/quotas/export", view, ph.Export)
	pg.Get("/:id/events", view, ph.Events)
	pg.Get("/:id/certificates", view, ch.ListByProject)
	pg.Post("/:id/maturation/redistribute", middleware.AuthorizePermission(constants.ManageProjects), ph.Redistribute)
	pg.Post("/:id/allocate", middleware.AuthorizePermission(constants.AllocateUnits), ph.Allocate)
	pg.Post("/:id/assign-range/preview", middleware.AuthorizePermission(constants.AssignQuotas), qh.PreviewRange)
	pg.Post("/:id/assign-range", middleware.AuthorizePermission(constants.AssignQuotas), qh.CommitRange)

	// Quotas
	qg := api.Group("/quotas")
	qg.Post("/maturation/refresh", middleware.AuthorizePermission(constants.ManageProjects), qh.RefreshMaturation)
	qg.Post("/:id/assign", middleware.AuthorizePermission(constants.AssignQuotas), qh.Assign)
	qg.Post("/:id/allocate", middleware.AuthorizePermission(constants.AllocateUnits), qh.Allocate)
	qg.Post("/:id/certificate", middleware.AuthorizePermission(constants.IssueCertificates), qh.IssueCertificate)

	// Certificates
	cg := api.Group("/certificates")
	cg.Post("/consolidated", middleware.AuthorizePermission(constants.IssueCertificates), ch.IssueConsolidated)
	cg.Get("/:id", view, ch.Get)
	cg.Get("/:id/pdf", view, ch.PDF)

	// Investor portal
	api.Get("/portal/certificates", middleware.AuthorizePermission(constants.ViewOwnCertificates), ch.Mine)

	// Unit pool
	poh := &poolhandler.Handlers{Service: svc.Pool}
	pog := api.Group("/pool")
	pog.Post("/units", middleware.AuthorizePermission(constants.ManageInventory), poh.Register)
	pog.Get("/units", view, poh.Head)
	pog.Get("/stock", view, poh.Stock)

	// Investors
	ih := &invhandler.Handlers{Service: svc.Investors, Coordinator: svc.Coordinator}
	ig := api.Group("/investors")
	ig.Post("/", middleware.AuthorizePermission(constants.ManageInvestors), ih.Create)
	ig.Get("/", view, ih.List)
	ig.Get("/:id", view, ih.Get)
	ig.Post("/:id/invite", middleware.AuthorizePermission(constants.ManageInvestors), ih.Invite)

	return app
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
