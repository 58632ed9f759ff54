// Package main 是服务端的入口点
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"slideshow-server/internal/cache"
	"slideshow-server/internal/config"
	"slideshow-server/internal/handler"
	"slideshow-server/internal/middleware"
	"slideshow-server/internal/model"
	"slideshow-server/internal/reddit"
	"slideshow-server/internal/repository"
	"slideshow-server/internal/service"
	"slideshow-server/internal/websocket"
	"slideshow-server/pkg/jwt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("./configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}

	// 自动迁移数据库表
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化 Redis
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		log.Fatalf("Failed to init redis: %v", err)
	}

	// 初始化 JWT 服务
	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpire,
		cfg.JWT.RefreshExpire,
	)

	// 初始化 Repository 层
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	slideshowRepo := repository.NewSlideshowRepository(db)

	// 初始化 Reddit 抓取客户端
	redditClient := reddit.NewClient(cfg, redisCache)

	// 初始化 Service 层
	authService := service.NewAuthService(userRepo, redisCache, jwtService)
	userService := service.NewUserService(userRepo, redisCache)
	conversationService := service.NewConversationService(conversationRepo, userRepo)
	mediaService := service.NewMediaService(mediaRepo, conversationRepo)
	sourceService := service.NewSourceService(mediaRepo, redditClient)
	scheduler := service.NewAdvanceScheduler()
	slideshowService := service.NewSlideshowService(slideshowRepo, conversationRepo, sourceService, redisCache, scheduler)

	// 初始化 WebSocket Hub，并接入幻灯片事件广播
	wsHub := websocket.NewHub(slideshowService, conversationRepo, redisCache)
	slideshowService.SetNotifier(wsHub)
	go wsHub.Run() // 在单独的 goroutine 中运行

	// 初始化 Handler 层
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	conversationHandler := handler.NewConversationHandler(conversationService)
	mediaHandler := handler.NewMediaHandler(mediaService)
	slideshowHandler := handler.NewSlideshowHandler(slideshowService)
	wsHandler := websocket.NewHandler(wsHub, cfg.JWT.Secret)

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())                // 恢复 panic
	router.Use(middleware.LoggerMiddleware()) // 请求日志
	router.Use(middleware.CORSMiddleware())   // CORS

	// 注册路由
	registerRoutes(router, jwtService, redisCache, authHandler, userHandler, conversationHandler, mediaHandler, slideshowHandler, wsHandler)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("Server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// 创建关闭上下文，设置超时
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// 撤掉所有自动播放定时器
	// 放映状态都在数据库里，重启后客户端重连即可恢复
	if n, err := slideshowRepo.CountActive(ctx); err == nil && n > 0 {
		log.Printf("Shutting down with %d active slideshows", n)
	}
	scheduler.CancelAll()

	// 关闭 Redis 连接
	if err := redisCache.Close(); err != nil {
		log.Printf("Failed to close redis: %v", err)
	}

	log.Println("Server exited")
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	// 构建 DSN (Data Source Name)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.MySQL.Username,
		cfg.MySQL.Password,
		cfg.MySQL.Host,
		cfg.MySQL.Port,
		cfg.MySQL.Database,
		cfg.MySQL.Charset,
	)

	// 配置 GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	// 连接数据库
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 获取底层 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MySQL.MaxLifetime) * time.Second)

	log.Println("Database connected successfully")
	return db, nil
}

// autoMigrate 自动迁移数据库表
func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Participant{},
		&model.Media{},
		&model.SlideshowSession{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	log.Println("Database migrations completed")
	return nil
}

// registerRoutes 注册所有路由
func registerRoutes(
	router *gin.Engine,
	jwtService *jwt.JWTService,
	redisCache *cache.RedisCache,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	conversationHandler *handler.ConversationHandler,
	mediaHandler *handler.MediaHandler,
	slideshowHandler *handler.SlideshowHandler,
	wsHandler *websocket.Handler,
) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 路由组
	v1 := router.Group("/api/v1")

	// 认证相关（无需登录）
	auth := v1.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken) // 刷新 Token
	}

	// 登出需要登录态（要拿到当前 Token）
	authRequired := v1.Group("/auth")
	authRequired.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		authRequired.POST("/logout", authHandler.Logout)
	}

	// 用户相关（需要登录）
	users := v1.Group("/users")
	users.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		users.GET("/me", userHandler.GetProfile)
		users.PUT("/me", userHandler.UpdateProfile)
		users.PUT("/me/password", userHandler.ChangePassword)
	}

	// 会话相关（需要登录）
	conversations := v1.Group("/conversations")
	conversations.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		conversations.POST("", conversationHandler.Create)
		conversations.GET("", conversationHandler.List)
		conversations.GET("/:id", conversationHandler.Get)
		conversations.POST("/:id/participants", conversationHandler.AddParticipant)
	}

	// 媒体相关（需要登录）
	media := v1.Group("/media")
	media.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		media.POST("", mediaHandler.Create)
		media.GET("", mediaHandler.List)
		media.DELETE("/:id", mediaHandler.Delete)
	}

	// 幻灯片相关（需要登录）
	// 命令接口与 WebSocket 命令语义一致，变更结果通过 WebSocket 广播
	slideshows := v1.Group("/slideshows")
	slideshows.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		slideshows.POST("", slideshowHandler.Start)
		slideshows.GET("", slideshowHandler.ListHistory)
		slideshows.GET("/active", slideshowHandler.GetActive)
		slideshows.GET("/:id", slideshowHandler.GetState)
		slideshows.POST("/:id/navigate", slideshowHandler.Navigate)
		slideshows.POST("/:id/transfer", slideshowHandler.Transfer)
		slideshows.PUT("/:id/auto-advance", slideshowHandler.UpdateAutoAdvance)
		slideshows.PUT("/:id/sort", slideshowHandler.ChangeSort)
		slideshows.POST("/:id/stop", slideshowHandler.Stop)
	}

	// WebSocket 路由
	wsHandler.RegisterRoutes(router)
}
