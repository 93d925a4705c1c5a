// Package httpapi serves the local debug surface: health and a live
// session snapshot. It is an observer only and never mutates the session.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/app/session"
)

func SetupRouter(mode string, snapshot func() session.Snapshot) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/debug/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, snapshot())
	})

	log.Info().Str("module", "adapters.httpapi").Msg("router setup")
	return r
}
