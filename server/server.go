package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soundsketch/config"
	"soundsketch/core/audio"
	"soundsketch/core/auth"
	"soundsketch/core/ratelimit"
	"soundsketch/core/upload"
	"soundsketch/db"
	"soundsketch/logger"
	"soundsketch/model"
	"soundsketch/repository"
	"soundsketch/storage"

	"github.com/gorilla/mux"
)

// Start initializes dependencies and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{Level: logger.InfoLevel})

	auth.InitJWT(cfg.JWTSecret)

	// 对象存储
	minioClient, err := storage.NewMinioClient(cfg)
	if err != nil {
		logger.Fatal("初始化 MinIO 失败", logger.ErrorField(err))
	}

	// 数据库
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("连接数据库失败", logger.ErrorField(err))
	}
	defer db.DB.Close()
	if err := db.InitDB(); err != nil {
		logger.Fatal("初始化数据库失败", logger.ErrorField(err))
	}

	// 评论模块使用 GORM
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("连接 GORM 数据库失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(&model.Comment{}); err != nil {
		logger.Fatal("迁移评论表失败", logger.ErrorField(err))
	}

	// Redis 承载限流桶
	redisClient, err := db.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("连接 Redis 失败", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// 转码引擎：找不到 ffmpeg 直接启动失败
	transcoder, err := audio.NewTranscoder(cfg.FFmpegPath, cfg.AudioBitrate, cfg.TranscodeTimeout)
	if err != nil {
		logger.Fatal("加载转码引擎失败", logger.ErrorField(err))
	}

	presign, err := storage.NewPresignService(minioClient, cfg.MinioBucket)
	if err != nil {
		logger.Fatal("初始化预签名服务失败", logger.ErrorField(err))
	}

	userRepo := repository.NewMySQLUserRepository(db.DB)
	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	versionRepo := repository.NewMySQLVersionRepository(db.DB)
	commentRepo := repository.NewGormCommentRepository(db.GormDB)

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient))
	urlCache := storage.NewURLCache(presign)
	progressHub := NewProgressHub()
	orchestrator := upload.NewOrchestrator(transcoder, presign, versionRepo, cfg.MinioBucket, cfg.TempDir)

	apiHandler := NewAPIHandler(cfg, userRepo, trackRepo, versionRepo, commentRepo,
		orchestrator, presign, urlCache, limiter, minioClient, progressHub)

	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// 曲目相关的API端点
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.CreateTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.GetTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateTrackHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/tracks/{id}/downloads", apiHandler.AuthMiddleware(apiHandler.SetDownloadsEnabledHandler)).Methods(http.MethodPut)

	// 版本相关的API端点
	router.HandleFunc("/api/tracks/{id}/versions", apiHandler.AuthMiddleware(apiHandler.UploadVersionHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/versions", apiHandler.OptionalAuthMiddleware(apiHandler.ListVersionsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/versions/{id}", apiHandler.OptionalAuthMiddleware(apiHandler.GetVersionHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/versions/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteVersionHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/versions/{id}/stream-url", apiHandler.OptionalAuthMiddleware(apiHandler.StreamURLHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/versions/{id}/download", apiHandler.OptionalAuthMiddleware(apiHandler.DownloadURLHandler)).Methods(http.MethodGet)

	// 上传进度 WebSocket
	router.HandleFunc("/api/upload/progress/{session_id}", apiHandler.UploadProgressWSHandler)

	// 分享页与评论相关的API端点（匿名访客可用）
	router.HandleFunc("/api/shared/{shareable_id}", apiHandler.GetSharedTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/comments", apiHandler.OptionalAuthMiddleware(apiHandler.CreateCommentHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/comments", apiHandler.OptionalAuthMiddleware(apiHandler.ListCommentsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/comments/attachments/upload-url", apiHandler.OptionalAuthMiddleware(apiHandler.AttachmentUploadURLHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/comments/{id}/attachment", apiHandler.OptionalAuthMiddleware(apiHandler.AttachmentDownloadURLHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/comments/{id}/replies", apiHandler.OptionalAuthMiddleware(apiHandler.ListRepliesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/comments/{id}", apiHandler.OptionalAuthMiddleware(apiHandler.UpdateCommentHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/comments/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteCommentHandler)).Methods(http.MethodDelete)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Minute, // 大文件上传
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("服务器启动", logger.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器异常退出", logger.ErrorField(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("收到退出信号，正在关闭服务器")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭失败", logger.ErrorField(err))
	}
	logger.Info("服务器已退出")
}
