package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/autofi/recommender/internal/config"
)

func CORS(cfg *config.Config) gin.HandlerFunc {
	origins := cfg.Security.CORS.AllowedOrigins

	corsConfig := cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  cfg.Security.CORS.AllowedMethods,
		AllowHeaders:  cfg.Security.CORS.AllowedHeaders,
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		// Credentials cannot be combined with a wildcard origin.
		AllowCredentials: len(origins) > 0 && origins[0] != "*",
	}

	return cors.New(corsConfig)
}
