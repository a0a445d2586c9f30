// Package handlers contains HTTP request handlers for the telemetry service.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RootResponse represents the root endpoint response
type RootResponse struct {
	Message string `json:"message"`
}

// RootHandler handles the root endpoint
func RootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, RootResponse{
		Message: "F1 Data Service",
	})
}
