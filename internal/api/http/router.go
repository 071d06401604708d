package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/enrollment-service/internal/api/http/handlers"
	"github.com/spec-kit/enrollment-service/internal/auth"
	"github.com/spec-kit/enrollment-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Enrollments    *handlers.EnrollmentsHandler
	AuthMiddleware *auth.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	offerings := app.Group("/offerings", cfg.AuthMiddleware.Handle)
	offerings.Get("/:id/seats", cfg.Enrollments.SeatSummary)

	enrollments := app.Group("/enrollments", cfg.AuthMiddleware.Handle)
	enrollments.Get("", cfg.Enrollments.List)
	enrollments.Get("/:id", cfg.Enrollments.Get)
	enrollments.Get("/:id/history", cfg.Enrollments.History)
	enrollments.Post("", auth.RequireRole(domain.RoleStudent), cfg.Enrollments.Enroll)
	enrollments.Post("/:id/drop", auth.RequireRole(domain.RoleStudent), cfg.Enrollments.Drop)

	instructor := auth.RequireRole(domain.RoleInstructor)
	enrollments.Post("/:id/instructor-approve", instructor, cfg.Enrollments.InstructorApprove)
	enrollments.Post("/:id/instructor-reject", instructor, cfg.Enrollments.InstructorReject)
	enrollments.Post("/:id/complete", instructor, cfg.Enrollments.Complete)

	advisor := auth.RequireRole(domain.RoleAdvisor)
	enrollments.Post("/:id/advisor-approve", advisor, cfg.Enrollments.AdvisorApprove)
	enrollments.Post("/:id/advisor-reject", advisor, cfg.Enrollments.AdvisorReject)
}
