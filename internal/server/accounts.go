package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	accountdomain "github.com/smallbiznis/payconnect/internal/account/domain"
)

type startOnboardingRequest struct {
	Email   string `json:"email"`
	Country string `json:"country"`
}

type startOnboardingResponse struct {
	OnboardingURL     string `json:"onboarding_url"`
	ProviderAccountID string `json:"provider_account_id"`
}

func (s *Server) StartOnboarding(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req startOnboardingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.accountSvc.StartOnboarding(c.Request.Context(), accountdomain.StartOnboardingRequest{
		UserID:  userID,
		Email:   req.Email,
		Country: req.Country,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, startOnboardingResponse{
		OnboardingURL:     resp.OnboardingURL,
		ProviderAccountID: resp.ProviderAccountID,
	})
}

func (s *Server) GetAccountStatus(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	refresh := false
	if raw := c.Query("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, newValidationError("refresh", "invalid_bool", "refresh must be a boolean"))
			return
		}
		refresh = parsed
	}

	result, err := s.statusSvc.Lookup(c.Request.Context(), userID, refresh)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
