package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/trackship/server/src/auth"
	"github.com/trackship/server/src/store"
	"github.com/trackship/server/src/types"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

func (s *Server) handleLogin(c fiber.Ctx) error {
	var req loginRequest
	if err := c.Bind().Body(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Email and password are required")
	}

	user, err := s.store.GetUserByEmail(c.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("login lookup failed")
		return fail(c, fiber.StatusInternalServerError, "An error occurred during login")
	}

	if !auth.CheckPassword(user.Password, req.Password) {
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	identity := types.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}
	token, err := s.tokens.Sign(identity)
	if err != nil {
		s.logger.Error().Err(err).Msg("token signing failed")
		return fail(c, fiber.StatusInternalServerError, "An error occurred during login")
	}

	return ok(c, fiber.Map{
		"token": token,
		"user":  fiber.Map{"id": user.ID, "email": user.Email, "role": user.Role},
	})
}

func (s *Server) handleRegister(c fiber.Ctx) error {
	var req registerRequest
	if err := c.Bind().Body(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "A valid email and a password of at least 6 characters are required")
	}
	if req.Role == "" {
		req.Role = "user"
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("password hashing failed")
		return fail(c, fiber.StatusInternalServerError, "An error occurred during registration")
	}

	user, err := s.store.CreateUser(c.Context(), req.Email, hash, req.Role)
	if errors.Is(err, store.ErrDuplicateEmail) {
		return fail(c, fiber.StatusBadRequest, "User with this email already exists")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("user creation failed")
		return fail(c, fiber.StatusInternalServerError, "An error occurred during registration")
	}

	return created(c, fiber.Map{"user": user})
}

func (s *Server) handleVerify(c fiber.Ctx) error {
	identity, _ := auth.IdentityFromCtx(c)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Token is valid",
		"data":    fiber.Map{"user": identity},
	})
}

func (s *Server) handleMe(c fiber.Ctx) error {
	identity, _ := auth.IdentityFromCtx(c)
	return ok(c, fiber.Map{"user": identity})
}
