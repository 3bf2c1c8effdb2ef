package middleware

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"aslab_go/config"
	"aslab_go/database"
	"aslab_go/models"
	"aslab_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(config.AppConfig.JWTExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func blacklistKey(jti string) string { return "jwt_blacklist_" + jti }

// RevokeToken blacklists the token until it would have expired anyway.
func RevokeToken(ctx context.Context, claims *Claims) error {
	if database.Cache == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return database.Cache.Put(ctx, blacklistKey(claims.ID), "revoked", ttl)
}

func revoked(ctx context.Context, claims *Claims) bool {
	if database.Cache == nil || claims.ID == "" {
		return false
	}
	ok, err := database.Cache.Has(ctx, blacklistKey(claims.ID))
	if err != nil {
		logrus.WithError(err).Warn("token blacklist lookup failed")
		return false
	}
	return ok
}

func bearerToken(c *fiber.Ctx) (string, string) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		// Browsers cannot set headers on a websocket handshake.
		if t := c.Query("token"); t != "" {
			return t, ""
		}
		return "", "Missing authorization header"
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", "Invalid authorization header format"
	}
	return tokenString, ""
}

// ParseToken validates a token string and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Unexpected signing method")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}
	return claims, nil
}

// JWTMiddleware validates JWT tokens
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, msg := bearerToken(c)
		if msg != "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg})
		}

		claims, err := ParseToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}
		if revoked(c.UserContext(), claims) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token has been revoked"})
		}

		// Verify user still exists and is active
		var user models.User
		if err := database.DB.Where("id = ? AND is_active = ?", claims.UserID, true).First(&user).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found or inactive"})
		}

		c.Locals("user", &user)
		c.Locals("claims", claims)
		return c.Next()
	}
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := GetCurrentUser(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing user claims"})
		}
		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient permissions"})
	}
}

// RequireAdmin allows only admins.
func RequireAdmin() fiber.Handler {
	return RequireRole(models.RoleAdmin)
}

// RequireStaff allows admins and aslabs.
func RequireStaff() fiber.Handler {
	return RequireRole(models.RoleAdmin, models.RoleAslab)
}

// RequirePermission passes when the user holds any of the named
// permissions. Admins always pass.
func RequirePermission(perms *services.PermissionService, names ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := GetCurrentUser(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing user claims"})
		}
		for _, name := range names {
			ok, err := perms.HasPermission(c.UserContext(), *user, name)
			if err != nil {
				logrus.WithFields(logrus.Fields{"user_id": user.ID, "permission": name, "error": err.Error()}).Error("permission check failed")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to check permission"})
			}
			if ok {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient permissions"})
	}
}

// DeviceKey protects the RFID device API when RFID_DEVICE_KEY is set.
func DeviceKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		want := config.AppConfig.RFIDDeviceKey
		if want == "" {
			return c.Next()
		}
		got := c.Get("X-Device-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Perangkat tidak dikenal",
			})
		}
		return c.Next()
	}
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found in context")
	}
	return user, nil
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}
