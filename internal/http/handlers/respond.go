package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rental-marketplace/backend/internal/http/dto"
	"github.com/rental-marketplace/backend/internal/middleware"
	"github.com/rental-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

const defaultPageSize = 20

// statusFor maps the lifecycle error taxonomy to an HTTP status. Zero means
// the error is not part of the taxonomy.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthenticated), errors.Is(err, models.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrDuplicateEmail):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrDeadlineNotReached):
		return fiber.StatusTooEarly
	case errors.Is(err, models.ErrInvalidArgument):
		return fiber.StatusBadRequest
	}
	return 0
}

// fail writes err as a JSON error. Errors outside the taxonomy are logged
// and reported as a generic 500.
func fail(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == 0 {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		status = fiber.StatusInternalServerError
		msg = "internal error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: data})
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: data})
}

func paramID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// page reads limit/offset query parameters. Malformed values fall back to
// the defaults; the stores cap oversized limits.
func page(c *fiber.Ctx) (limit, offset int) {
	limit = defaultPageSize
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
