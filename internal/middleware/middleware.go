package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bizdesk/internal/models"
)

// APIAuth validates the Token header against the API key or the contents of
// the hash file. The hash file may hold the token itself or its SHA-256.
func APIAuth(apiKey string, hashFilePath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get("Token")
			if token == "" {
				return c.JSON(http.StatusUnauthorized, models.APIResponse{
					Status: false,
					Msg:    "Token is required",
				})
			}

			if apiKey != "" && equal(token, apiKey) {
				return next(c)
			}

			if hashFilePath != "" {
				if hashData, err := os.ReadFile(hashFilePath); err == nil {
					hash := strings.TrimSpace(string(hashData))
					if hash != "" {
						if equal(token, hash) {
							return next(c)
						}
						h := sha256.Sum256([]byte(token))
						if equal(hex.EncodeToString(h[:]), hash) {
							return next(c)
						}
					}
				}
			}

			return c.JSON(http.StatusUnauthorized, models.APIResponse{
				Status: false,
				Msg:    "Invalid token",
			})
		}
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// APILogger logs every API request with its outcome.
func APILogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("api request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.String("id", c.Param("id")),
				zap.Int("status", c.Response().Status),
				zap.String("ip", c.RealIP()),
				zap.Duration("latency", time.Since(start)),
			)
			return nil
		}
	}
}

// CORS configures CORS headers.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Access-Control-Allow-Origin", "*")
			c.Response().Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type, Token, Authorization")
			if c.Request().Method == "OPTIONS" {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
