package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

type loginResponsePayload struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	ExpiresIn   int64  `json:"expiresIn"`
}

var loginFieldCodes = map[string]failure.Code{
	"Email":    failure.CodeInvalidCredentials,
	"Password": failure.CodeInvalidCredentials,
}

func (h *httpHandler) handleLoginPage(c *gin.Context) {
	respondOK(c, http.StatusOK, gin.H{
		"loginPath": "/auth/login",
		"method":    http.MethodPost,
		"fields":    []string{"email", "password"},
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	if h.limiter != nil {
		allowed, attempts, err := h.limiter.Allow(c.Request.Context(), "login:"+c.ClientIP())
		if err != nil {
			h.logger.Error("login rate limit check failed", zap.Error(err))
			respondCode(c, failure.CodeInternal)
			return
		}
		if !allowed {
			window := h.limiter.Window()
			h.logger.Warn("login rate limit exceeded",
				zap.String("client_ip", c.ClientIP()),
				zap.Int64("attempts", attempts),
				zap.Duration("window", window))
			if window > 0 {
				c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			}
			respondCode(c, failure.CodeRateLimited)
			return
		}
	}

	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondCode(c, bindingFailureCode(err, loginFieldCodes))
		return
	}

	identity, err := h.authenticator.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, ttl, err := h.issuer.IssueSession(identity.UserID, identity.Email, identity.DisplayName)
	if err != nil {
		h.logger.Error("failed to issue session", zap.String("user_id", identity.UserID), zap.Error(err))
		respondCode(c, failure.CodeInternal)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), token, int(ttl.Seconds()), "/", "", h.secureCookies, true)
	respondOK(c, http.StatusOK, loginResponsePayload{
		UserID:      identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		ExpiresIn:   int64(ttl.Seconds()),
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", h.secureCookies, true)
	respondOK(c, http.StatusOK, nil)
}
