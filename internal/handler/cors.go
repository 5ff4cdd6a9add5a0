package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/glob"
)

// CORSMiddleware creates a CORS middleware. Allowed origins are glob patterns
// such as "https://*.example.com"; "*" allows any origin.
func CORSMiddleware(allowedOrigins, allowedMethods, allowedHeaders []string) (gin.HandlerFunc, error) {
	patterns := make([]glob.Glob, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		pattern, err := glob.Compile(origin)
		if err != nil {
			return nil, fmt.Errorf("invalid CORS origin pattern %q: %w", origin, err)
		}
		patterns = append(patterns, pattern)
	}

	methods := strings.Join(allowedMethods, ", ")
	headers := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && originAllowed(patterns, origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", headers)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methods)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}, nil
}

func originAllowed(patterns []glob.Glob, origin string) bool {
	for _, pattern := range patterns {
		if pattern.Match(origin) {
			return true
		}
	}
	return false
}
