package controllers

import (
	"aslab_go/middleware"
	"aslab_go/models"
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (ac *AuthController) tokenResponse(c *fiber.Ctx, user *models.User, message string) error {
	token, err := middleware.GenerateToken(user)
	if err != nil {
		logrus.WithError(err).Error("failed to generate token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}
	return c.JSON(fiber.Map{
		"message":    message,
		"token":      token,
		"token_type": "Bearer",
		"user":       utils.ToUserDTO(*user),
	})
}

// Login authenticates a user and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	user, err := ac.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondServiceError(c, err, "Login gagal")
	}
	c.Locals("user", user)
	middleware.LogActivity(c, "LOGIN", "auth", user.ID, fiber.Map{"email": user.Email, "role": user.Role})
	return ac.tokenResponse(c, user, "Login successful")
}

// Register creates a mahasiswa account and logs it in.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req services.RegisterInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	user, err := ac.auth.Register(c.UserContext(), req)
	if err != nil {
		return respondServiceError(c, err, "Registrasi gagal")
	}
	c.Status(fiber.StatusCreated)
	return ac.tokenResponse(c, user, "Registrasi berhasil")
}

// Me returns the current user with permissions.
func (ac *AuthController) Me(c *fiber.Ctx) error {
	current, ok, err := currentUser(c)
	if !ok {
		return err
	}
	user, perms, err := ac.auth.Me(c.UserContext(), current.ID)
	if err != nil {
		return respondServiceError(c, err, "Failed to load profile")
	}
	dto := utils.ToUserDTO(*user)
	dto.Permissions = perms
	return c.JSON(fiber.Map{"user": dto})
}

// Refresh issues a new token and revokes the old one.
func (ac *AuthController) Refresh(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	if claims, err := middleware.GetCurrentClaims(c); err == nil {
		if err := middleware.RevokeToken(c.UserContext(), claims); err != nil {
			logrus.WithError(err).Warn("failed to revoke refreshed token")
		}
	}
	return ac.tokenResponse(c, user, "Token refreshed")
}

// Logout revokes the current token.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing token"})
	}
	if err := middleware.RevokeToken(c.UserContext(), claims); err != nil {
		// Logout still succeeds on the client side.
		logrus.WithError(err).Warn("failed to revoke token")
	}
	middleware.LogActivity(c, "LOGOUT", "auth", claims.UserID, nil)
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req services.ChangePasswordInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	if err := ac.auth.ChangePassword(c.UserContext(), user.ID, req); err != nil {
		return respondServiceError(c, err, "Gagal mengubah password")
	}
	middleware.LogActivity(c, "CHANGE_PASSWORD", "auth", user.ID, nil)
	return c.JSON(fiber.Map{"message": "Password berhasil diubah"})
}

func (ac *AuthController) UpdateProfile(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req services.ProfileInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	updated, err := ac.auth.UpdateProfile(c.UserContext(), user.ID, req)
	if err != nil {
		return respondServiceError(c, err, "Gagal memperbarui profil")
	}
	return c.JSON(fiber.Map{"message": "Profil berhasil diperbarui", "user": utils.ToUserDTO(*updated)})
}

// ForgotPassword always answers the same way so emails cannot be probed.
func (ac *AuthController) ForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	if err := ac.auth.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return respondServiceError(c, err, "Gagal mengirim email reset password")
	}
	return c.JSON(fiber.Map{"message": "Jika email terdaftar, link reset password telah dikirim"})
}

func (ac *AuthController) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	if err := ac.auth.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return respondServiceError(c, err, "Gagal reset password")
	}
	return c.JSON(fiber.Map{"message": "Password berhasil direset"})
}
