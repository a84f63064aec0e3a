package main

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/orghub/config"
	"github.com/cppla/orghub/controllers"
	"github.com/cppla/orghub/models"
	"github.com/cppla/orghub/routes"
	"github.com/cppla/orghub/services"
	"github.com/cppla/orghub/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync() //nolint:errcheck

	db := config.InitDatabase(models.All()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rc *redis.Client
	if cfg.CacheEnabled || cfg.CaptchaStore == "redis" {
		var err error
		// a Redis outage only degrades caching, the client reconnects on its own
		if rc, err = utils.OpenRedis(ctx, cfg); err != nil {
			utils.Logger.Warn("redis unavailable at boot", zap.Error(err))
		}
		defer rc.Close()
	}
	var cache services.Cache
	if cfg.CacheEnabled {
		cache = utils.NewRedisCache(rc, utils.Logger)
	}
	var captchaStore base64Captcha.Store
	if cfg.CaptchaStore == "redis" {
		captchaStore = utils.NewRedisCaptchaStore(rc, time.Duration(cfg.CaptchaTTLSec)*time.Second)
	}
	captcha := utils.NewCaptcha(captchaStore)

	store, err := services.NewLocalStore(cfg.MediaDir)
	if err != nil {
		utils.Sugar.Fatalf("media storage: %v", err)
	}
	staging, err := services.NewStaging(db, cfg.UploadDir,
		time.Duration(cfg.UploadTTLMinutes)*time.Minute,
		int64(cfg.UploadMaxSizeMB)*1024*1024,
		utils.Logger)
	if err != nil {
		utils.Sugar.Fatalf("upload staging: %v", err)
	}

	posts := services.NewPostService(services.Deps{
		DB:            db,
		Store:         store,
		Staging:       staging,
		Captcha:       captcha,
		Cache:         cache,
		Logger:        utils.Logger,
		DevSecretHash: cfg.DevSecretHash,
	})

	// sweeps expired uploads and retries pending file removals
	services.NewJanitor(staging, posts.Cleanups(), time.Duration(cfg.JanitorIntervalSec)*time.Second, utils.Logger).Start(ctx)

	r := routes.SetupRouter(cfg, routes.Handlers{
		Posts:   controllers.NewPostController(posts, utils.Logger),
		Uploads: controllers.NewUploadController(staging, utils.Logger),
		Captcha: controllers.NewCaptchaController(captcha),
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, cancel); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
