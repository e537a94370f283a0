package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxCallbackBody = 1 << 20

// HandlePaymentCallback ingests a gateway notification. Replays and events for
// invoices already past the notified state are acknowledged with 200.
func (s *Server) HandlePaymentCallback(c *gin.Context) {
	channel := strings.TrimSpace(c.Param("channel"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.invoiceSvc.HandleGatewayCallback(c.Request.Context(), channel, c.Request.Header, payload); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
