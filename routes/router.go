package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/orghub/config"
	"github.com/cppla/orghub/controllers"
	"github.com/cppla/orghub/middleware"
	"github.com/cppla/orghub/utils"
)

// Handlers groups the controllers served by the router.
type Handlers struct {
	Posts   *controllers.PostController
	Uploads *controllers.UploadController
	Captcha *controllers.CaptchaController
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, h Handlers) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	recovered := false
	if cfg.GinPath != "" {
		// access log goes to its own rolling file
		gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
		if err == nil {
			r.Use(utils.Ginzap(gl, time.RFC3339, true))
			r.Use(utils.RecoveryWithZap(gl, false))
			recovered = true
		}
	}
	if !recovered {
		r.Use(utils.RecoveryWithZap(utils.Logger, true))
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// credentials can not be combined with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	api.GET("/captcha", h.Captcha.Captcha)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(cfg.JWTSecret))

	protected.POST("/uploads", h.Uploads.Upload)

	posts := protected.Group("/posts")
	posts.GET("", h.Posts.ListPosts)
	posts.POST("", h.Posts.CreatePost)
	posts.GET("/:id", h.Posts.GetPost)
	posts.PATCH("/:id", h.Posts.UpdatePost)
	posts.DELETE("/:id", h.Posts.DeletePost)
	posts.DELETE("/:id/image", h.Posts.DeletePostImage)
	posts.POST("/:id/like", h.Posts.LikePost)
	posts.POST("/:id/dislike", h.Posts.DislikePost)
	posts.POST("/:id/pin", h.Posts.PinPost)
	posts.POST("/:id/unpin", h.Posts.UnpinPost)
	posts.POST("/:id/join", h.Posts.JoinEvent)
	posts.POST("/:id/leave", h.Posts.LeaveEvent)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
