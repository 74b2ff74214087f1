package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/admin"
	"github.com/hms/hms/internal/domain/appointment"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/bloodbank"
	"github.com/hms/hms/internal/domain/dashboard"
	"github.com/hms/hms/internal/domain/lab"
	"github.com/hms/hms/internal/domain/messaging"
	"github.com/hms/hms/internal/domain/nursing"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/domain/ward"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/metrics"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/pubsub"
	"github.com/hms/hms/internal/platform/websocket"
)

type app struct {
	echo    *echo.Echo
	reg     *collection.Registry
	hub     *websocket.Hub
	bridge  *pubsub.Bridge
	metrics *metrics.Metrics
}

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// newApp opens every collection on conn, wires the domain services and
// mounts their routes. Change events go to websocket subscribers and, when
// Redis is configured, to the other server instances.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, conn *storeConn) (*app, error) {
	a := &app{
		hub:     websocket.NewHub(logger),
		metrics: metrics.New(),
	}
	pubs := collection.Publishers{a.hub}
	if conn.redis != nil {
		pubs = append(pubs, collection.PublisherFunc(func(ctx context.Context, ev collection.ChangeEvent) error {
			return a.bridge.Publish(ctx, ev)
		}))
	}
	a.reg = collection.NewRegistry(conn.store, logger,
		collection.WithPublisher(pubs),
		collection.WithObserver(a.metrics))
	if conn.redis != nil {
		a.bridge = pubsub.NewBridge(conn.redis, cfg.EventsChannel, a.reg, logger)
	}

	handlers, err := openDomains(ctx, cfg, a.reg, clock.System)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(a.metrics.Middleware())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "If-Match", auth.DevRoleHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/store", db.HealthHandler(cfg.StoreDriver, conn.store, conn.pool))
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	api := e.Group("/api/v1", authMiddleware(cfg))
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	websocket.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(api)

	a.echo = e
	return a, nil
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSigningKey)}
	if cfg.ResolvedAuthMode() == "jwt" {
		return auth.JWTMiddleware(jwtCfg)
	}
	var jwtMW echo.MiddlewareFunc
	if cfg.AuthSigningKey != "" {
		jwtMW = auth.JWTMiddleware(jwtCfg)
	}
	return auth.DevAuthMiddleware(jwtMW)
}

// openDomains opens the collections of every domain in dependency order and
// returns their HTTP handlers.
func openDomains(ctx context.Context, cfg *config.Config, reg *collection.Registry, clk clock.Clock) ([]routeRegistrar, error) {
	settings, err := admin.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	adminSvc := admin.NewService(settings, reg, admin.Defaults{
		HospitalName:           cfg.HospitalName,
		Currency:               cfg.Currency,
		TaxRate:                cfg.DefaultTaxRate,
		PharmacyExpiryWarnDays: cfg.PharmacyExpiryWarnDays,
		BloodExpiryWarnDays:    cfg.BloodExpiryWarnDays,
	}, clk)

	staffC, err := staff.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	staffSvc := staff.NewService(staffC, clk)

	patientC, err := patient.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	patientSvc := patient.NewService(patientC, staffSvc, clk)

	appts, err := appointment.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	apptSvc := appointment.NewService(appts, patientSvc, staffSvc, clk)

	bills, err := billing.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	billSvc := billing.NewService(bills, patientSvc, adminSvc, clk)

	pharmC, err := pharmacy.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	pharmSvc := pharmacy.NewService(pharmC, patientSvc, adminSvc, clk)

	tests, err := lab.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	labSvc := lab.NewService(tests, patientSvc, staffSvc, clk)

	wardC, err := ward.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	wardSvc := ward.NewService(wardC, patientSvc, staffSvc, clk)

	nursingC, err := nursing.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	nursingSvc := nursing.NewService(nursingC, patientSvc, staffSvc, clk)

	bloodC, err := bloodbank.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	bloodSvc := bloodbank.NewService(bloodC, patientSvc, adminSvc, clk)

	msgC, err := messaging.Open(ctx, reg)
	if err != nil {
		return nil, err
	}
	msgSvc := messaging.NewService(msgC, patientSvc, staffSvc, clk)

	dashSvc := dashboard.NewService(dashboard.Sources{
		Patients:      patientC.Patients,
		Prescriptions: patientC.Prescriptions,
		Users:         staffC.Users,
		Appointments:  appts,
		LabTests:      tests,
		Medicines:     pharmC.Medicines,
		Refills:       pharmC.Refills,
		Orders:        pharmC.Orders,
		Vitals:        nursingC.Vitals,
		Attendance:    staffSvc,
		Billing:       billSvc,
		Pharmacy:      pharmSvc,
		Wards:         wardSvc,
		Nursing:       nursingSvc,
		BloodBank:     bloodSvc,
		Messaging:     msgSvc,
	}, clk)

	return []routeRegistrar{
		admin.NewHandler(adminSvc),
		staff.NewHandler(staffSvc),
		patient.NewHandler(patientSvc),
		appointment.NewHandler(apptSvc),
		billing.NewHandler(billSvc),
		pharmacy.NewHandler(pharmSvc),
		lab.NewHandler(labSvc),
		ward.NewHandler(wardSvc),
		nursing.NewHandler(nursingSvc),
		bloodbank.NewHandler(bloodSvc),
		messaging.NewHandler(msgSvc),
		dashboard.NewHandler(dashSvc),
	}, nil
}
