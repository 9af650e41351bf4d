package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rental-marketplace/backend/internal/auth"
	"github.com/rental-marketplace/backend/internal/config"
	"github.com/rental-marketplace/backend/internal/http/dto"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

type AuthHandler struct {
	userService *services.UserService
	cfg         *config.Config
	log         *zap.Logger
}

func NewAuthHandler(userService *services.UserService, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{userService: userService, cfg: cfg, log: log}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, err := h.userService.Register(c.Context(), req.Email, req.Password, req.DisplayName, req.Role)
	if err != nil {
		return fail(c, h.log, err)
	}
	return h.issue(c, fiber.StatusCreated, user)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	user, err := h.userService.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return fail(c, h.log, err)
	}
	return h.issue(c, fiber.StatusOK, user)
}

func (h *AuthHandler) issue(c *fiber.Ctx, status int, user *models.User) error {
	token, err := auth.GenerateJWT(h.cfg.JWTSecret, user.ID, user.Role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.Status(status).JSON(dto.AuthResponse{
		Token: token,
		User:  user,
	})
}
