package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines which dashboards may read the admin API.
type CORSConfig struct {
	AllowOrigins []string
	MaxAge       time.Duration
}

// AdminCORSConfig allows read-only access from origins
func AdminCORSConfig(origins []string) CORSConfig {
	return CORSConfig{AllowOrigins: origins, MaxAge: 12 * time.Hour}
}

// CORS creates a CORS middleware. With no origins it lets requests pass
// untouched.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	if len(cfg.AllowOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Accept", "Origin", "Cache-Control"},
		MaxAge:       cfg.MaxAge,
	})
}
