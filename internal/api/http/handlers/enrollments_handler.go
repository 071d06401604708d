package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/enrollment-service/internal/api/dto"
	"github.com/spec-kit/enrollment-service/internal/auth"
	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/service"
	apperrors "github.com/spec-kit/enrollment-service/pkg/util/errorutil"
)

// EnrollmentsHandler exposes the enrollment workflow.
type EnrollmentsHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentsHandler constructs handler.
func NewEnrollmentsHandler(enrollmentService *service.EnrollmentService) *EnrollmentsHandler {
	return &EnrollmentsHandler{service: enrollmentService}
}

// Enroll POST /enrollments.
func (h *EnrollmentsHandler) Enroll(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	enrollment, err := h.service.Enroll(c.UserContext(), caller, service.EnrollInput{
		OfferingID: req.OfferingID,
		Type:       req.Type,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewEnrollmentResponse(enrollment)})
}

// InstructorApprove POST /enrollments/:id/instructor-approve.
func (h *EnrollmentsHandler) InstructorApprove(c *fiber.Ctx) error {
	return h.transition(c, h.service.InstructorApprove)
}

// InstructorReject POST /enrollments/:id/instructor-reject.
func (h *EnrollmentsHandler) InstructorReject(c *fiber.Ctx) error {
	return h.rejection(c, h.service.InstructorReject)
}

// AdvisorApprove POST /enrollments/:id/advisor-approve.
func (h *EnrollmentsHandler) AdvisorApprove(c *fiber.Ctx) error {
	return h.transition(c, h.service.AdvisorApprove)
}

// AdvisorReject POST /enrollments/:id/advisor-reject.
func (h *EnrollmentsHandler) AdvisorReject(c *fiber.Ctx) error {
	return h.rejection(c, h.service.AdvisorReject)
}

// Drop POST /enrollments/:id/drop.
func (h *EnrollmentsHandler) Drop(c *fiber.Ctx) error {
	return h.transition(c, h.service.Drop)
}

// Complete POST /enrollments/:id/complete.
func (h *EnrollmentsHandler) Complete(c *fiber.Ctx) error {
	return h.transition(c, h.service.Complete)
}

// Get GET /enrollments/:id.
func (h *EnrollmentsHandler) Get(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	enrollment, err := h.service.Get(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEnrollmentResponse(enrollment)})
}

// History GET /enrollments/:id/history.
func (h *EnrollmentsHandler) History(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	trail, err := h.service.History(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AuditEventResponse, 0, len(trail))
	for i := range trail {
		items = append(items, dto.NewAuditEventResponse(&trail[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// List GET /enrollments.
func (h *EnrollmentsHandler) List(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	query, err := parseListQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.List(c.UserContext(), caller, query)
	if err != nil {
		return err
	}
	items := make([]dto.EnrollmentResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewEnrollmentResponse(&page.Items[i]))
	}
	return c.JSON(fiber.Map{"data": dto.EnrollmentPage{Items: items, NextCursor: page.NextCursor}})
}

// SeatSummary GET /offerings/:id/seats.
func (h *EnrollmentsHandler) SeatSummary(c *fiber.Ctx) error {
	summary, err := h.service.SeatSummary(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSeatSummaryResponse(summary)})
}

type transitionFunc func(ctx context.Context, caller domain.Caller, enrollmentID string) (*domain.Enrollment, error)

type rejectionFunc func(ctx context.Context, caller domain.Caller, enrollmentID, reason string) (*domain.Enrollment, error)

func (h *EnrollmentsHandler) transition(c *fiber.Ctx, fn transitionFunc) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	enrollment, err := fn(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEnrollmentResponse(enrollment)})
}

func (h *EnrollmentsHandler) rejection(c *fiber.Ctx, fn rejectionFunc) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	enrollment, err := fn(c.UserContext(), caller, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEnrollmentResponse(enrollment)})
}

func callerFrom(c *fiber.Ctx) (domain.Caller, error) {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return domain.Caller{}, apperrors.NewUnauthorized("authentication required")
	}
	return caller, nil
}

func parseListQuery(c *fiber.Ctx) (service.ListQuery, error) {
	query := service.ListQuery{
		OfferingID: c.Query("offering_id"),
		Cursor:     c.Query("cursor"),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				query.Statuses = append(query.Statuses, domain.EnrollmentStatus(strings.ToUpper(part)))
			}
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return query, apperrors.NewValidationError("limit must be an integer", map[string]any{"limit": limitStr})
		}
		query.Limit = limit
	}
	return query, nil
}
