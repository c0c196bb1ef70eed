package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirsearch/internal/config"
	"github.com/ehr/fhirsearch/internal/domain/encounter"
	"github.com/ehr/fhirsearch/internal/domain/observation"
	"github.com/ehr/fhirsearch/internal/domain/patient"
	"github.com/ehr/fhirsearch/internal/domain/task"
	"github.com/ehr/fhirsearch/internal/platform/auth"
	"github.com/ehr/fhirsearch/internal/platform/cache"
	"github.com/ehr/fhirsearch/internal/platform/db"
	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/middleware"
	"github.com/ehr/fhirsearch/internal/platform/search"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// NewSchema describes every searchable table served by this binary.
func NewSchema() *fhir.Schema {
	return fhir.NewSchema(patient.Table(), encounter.Table(), observation.Table(), task.Table())
}

// serverDeps carries the external resources a server is built on. Tenant is
// nil in tests, which then run without a per-request connection.
type serverDeps struct {
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Tenant echo.MiddlewareFunc
	Checks []db.Check
}

func newServer(cfg *config.Config, deps serverDeps, logger zerolog.Logger) *echo.Echo {
	schema := NewSchema()
	reg := search.NewRegistry()
	schema.RegisterParams(reg)

	var opts []search.Option
	if deps.Redis != nil {
		opts = append(opts, search.WithIDCache(cache.NewRedisIDCache(deps.Redis, ""), cfg.SearchCacheTTL))
	}
	query := search.NewQuery(reg, cfg.Properties(), logger, opts...)

	patientSvc := patient.NewService(patient.NewRepo(deps.Pool, schema), query)
	encounterSvc := encounter.NewService(encounter.NewRepo(deps.Pool, schema), query)
	observationSvc := observation.NewService(observation.NewRepo(deps.Pool, schema), query)
	taskSvc := task.NewService(task.NewRepo(deps.Pool, schema), query)

	reg.RegisterSource(patientSvc.Source(logger))
	reg.RegisterSource(encounterSvc.Source(logger))
	reg.RegisterSource(observationSvc.Source(logger))
	reg.RegisterSource(taskSvc.Source(logger))

	endpoint := fhir.NewSearchEndpoint(reg, fhir.SearchEndpointConfig{
		BaseURL:      cfg.FHIRBaseURL,
		DefaultCount: cfg.FHIRDefaultPageSize,
		Snapshots:    deps.Redis != nil,
	}, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "Prefer", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", db.HealthHandler(deps.Pool, deps.Checks...))

	cs := fhir.NewCapabilityStatement(cfg.FHIRBaseURL, schema, reg)
	e.GET("/fhir/metadata", fhir.CapabilityHandler(cs), fhir.FormatMiddleware())

	protected := []echo.MiddlewareFunc{authMiddleware(cfg, logger)}
	if deps.Tenant != nil {
		protected = append(protected, deps.Tenant)
	}
	apiV1 := e.Group("/api/v1", protected...)
	fhirGroup := e.Group("/fhir", fhir.FormatMiddleware())
	fhirGroup.Use(protected...)
	fhirGroup.Use(auth.RequireResourceScope("/fhir", "read"))

	patient.NewHandler(patientSvc, endpoint).RegisterRoutes(apiV1, fhirGroup)
	encounter.NewHandler(encounterSvc, endpoint).RegisterRoutes(apiV1, fhirGroup)
	observation.NewHandler(observationSvc, endpoint).RegisterRoutes(apiV1, fhirGroup)
	task.NewHandler(taskSvc, endpoint).RegisterRoutes(apiV1, fhirGroup)

	logger.Info().Strs("resources", schema.ResourceTypes()).Msg("search routes registered")
	return e
}

func authMiddleware(cfg *config.Config, logger zerolog.Logger) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Logger:   logger,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth enabled; requests without a token run as dev-user")
		return auth.DevAuthMiddleware(jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

// errorHandler renders errors on FHIR paths as OperationOutcome resources
// and leaves the rest to echo's default JSON errors.
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if !strings.HasPrefix(c.Request().URL.Path, "/fhir") {
			e.DefaultHTTPErrorHandler(err, c)
			return
		}
		status := http.StatusInternalServerError
		msg := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
		}
		c.Response().Header().Set(echo.HeaderContentType, fhir.FHIRContentType)
		if werr := c.JSON(status, fhir.NewOperationOutcome(fhir.IssueSeverityError, issueCode(status), msg)); werr != nil {
			c.Logger().Error(werr)
		}
	}
}

func issueCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return fhir.IssueTypeLogin
	case http.StatusForbidden:
		return fhir.IssueTypeForbidden
	case http.StatusNotFound:
		return fhir.IssueTypeNotFound
	case http.StatusMethodNotAllowed:
		return fhir.IssueTypeNotSupported
	case http.StatusRequestEntityTooLarge:
		return fhir.IssueTypeTooCostly
	}
	if status < 500 {
		return fhir.IssueTypeInvalid
	}
	return fhir.IssueTypeException
}

// redisCheck reports Redis reachability on /health.
func redisCheck(rc *redis.Client) db.Check {
	return db.Check{
		Name: "redis",
		Ping: func(ctx context.Context) error { return rc.Ping(ctx).Err() },
	}
}
