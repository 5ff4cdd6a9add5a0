package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/identity-service/internal/domain"
)

// DeviceHeader carries the client-chosen device label
const DeviceHeader = "X-Device"

// forwardedIP returns the first hop of X-Forwarded-For
func forwardedIP(c *gin.Context) string {
	forwarded := c.GetHeader("X-Forwarded-For")
	if forwarded == "" {
		return ""
	}
	first, _, _ := strings.Cut(forwarded, ",")
	return strings.TrimSpace(first)
}

// clientMetadata describes the caller for the session record. Missing values
// are filled with placeholders when the session is built.
func clientMetadata(c *gin.Context) domain.ClientMetadata {
	return domain.ClientMetadata{
		UserAgent: strings.TrimSpace(c.GetHeader("User-Agent")),
		IPAddress: forwardedIP(c),
		Device:    strings.TrimSpace(c.GetHeader(DeviceHeader)),
	}
}
