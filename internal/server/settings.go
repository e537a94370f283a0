package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetPaymentSettings(c *gin.Context) {
	settings, err := s.settingsSvc.PaymentSettings(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// UpdatePaymentSettings accepts a partial document; unknown values fall back to defaults.
func (s *Server) UpdatePaymentSettings(c *gin.Context) {
	var doc map[string]any
	if err := c.ShouldBindJSON(&doc); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	settings, err := s.settingsSvc.UpdatePaymentSettings(c.Request.Context(), principalFromContext(c), doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}
