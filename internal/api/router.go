// Package api exposes the upload pipeline over HTTP.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"notez-go/internal/logger"
)

type Options struct {
	FrontendURL    string
	MaxUploadBytes int64
}

// NewRouter builds the gin engine with recovery, request logging and CORS.
func NewRouter(svc Services, opts Options, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{opts.FrontendURL},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	RegisterHandlers(r, svc, opts.MaxUploadBytes, log)
	return r
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := logger.RequestID(c.Request)
		c.Request.Header.Set("X-Request-ID", reqID)
		c.Header("X-Request-ID", reqID)

		c.Next()

		entry := log.WithRequest(c.Request).
			WithField("status", c.Writer.Status()).
			WithField("latency_ms", time.Since(start).Milliseconds())
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request completed")
		case c.Writer.Status() >= 400:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	}
}
