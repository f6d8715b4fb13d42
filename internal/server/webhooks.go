package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/payconnect/internal/account/domain"
	providerdomain "github.com/smallbiznis/payconnect/internal/provider/domain"
)

// HandleProviderWebhook ingests provider events. The raw body is read
// before any parsing: the signature covers the exact bytes on the wire.
func (s *Server) HandleProviderWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.providerClient.VerifyAndParseEvent(payload, c.Request.Header)
	if err != nil {
		s.metrics.RecordWebhookEvent(c.Request.Context(), "unknown", "rejected")
		s.log.Warn("webhook rejected", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	switch event.Type {
	case providerdomain.EventTypeAccountUpdated, providerdomain.EventTypeCapabilityUpdated:
	default:
		// Subscribed but unhandled event types are acknowledged so the
		// provider stops redelivering them.
		s.metrics.RecordWebhookEvent(c.Request.Context(), event.Type, "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := s.accountSvc.ApplyWebhookEvent(c.Request.Context(), event, payload); err != nil {
		if errors.Is(err, accountdomain.ErrEventAlreadyProcessed) {
			s.metrics.RecordWebhookEvent(c.Request.Context(), event.Type, "duplicate")
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		s.metrics.RecordWebhookEvent(c.Request.Context(), event.Type, "failed")
		AbortWithError(c, err)
		return
	}

	s.metrics.RecordWebhookEvent(c.Request.Context(), event.Type, "processed")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
