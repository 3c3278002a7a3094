package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xiaowoniu928/hetzner-web/internal/api/response"
	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/pkg/crypto"
)

// BasicAuth guards the dashboard API with the credentials from the
// settings document. The document is re-read on every request so a
// credential edit applies without a restart. Unconfigured credentials
// lock the API closed, never open.
func BasicAuth(settings repository.SettingsRepository, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		cfg, err := settings.Load(c.Request.Context())
		if err != nil {
			logger.Error("dashboard settings unavailable", zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "settings unavailable")
			return
		}

		user, pass, ok := c.Request.BasicAuth()
		if !ok || !credentialsMatch(cfg, user, pass) {
			c.Header("WWW-Authenticate", `Basic realm="hetzner-web"`)
			response.Error(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		c.Next()
	}
}

// credentialsMatch verifies a presented pair against the configured
// one. The bcrypt password_hash wins when present; the plaintext
// password field is compared in constant time as a fallback for
// hand-provisioned files.
func credentialsMatch(cfg *model.DashboardSettings, user, pass string) bool {
	if cfg == nil || cfg.Username == "" {
		return false
	}
	if cfg.PasswordHash == "" && cfg.Password == "" {
		return false
	}
	if !crypto.ConstantTimeEquals(user, cfg.Username) {
		return false
	}
	if cfg.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(pass)) == nil
	}
	return crypto.ConstantTimeEquals(pass, cfg.Password)
}
