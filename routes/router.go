package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardledger/config"
	"github.com/cppla/rewardledger/controllers"
	"github.com/cppla/rewardledger/middleware"
	"github.com/cppla/rewardledger/rewards"
	"github.com/cppla/rewardledger/utils"
)

// Deps are the collaborators the router hands to controllers.
type Deps struct {
	Ledger *rewards.Ledger
	Cache  controllers.Cache
	Clock  controllers.Clock
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(gl, true))
	} else {
		utils.L().Warnf("gin logger unavailable, using default recovery: %v", err)
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.ServiceKeyHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	rewardsController := controllers.NewRewardsController(deps.Ledger, deps.Cache, deps.Clock)
	eventsController := controllers.NewEventsController(deps.Ledger, deps.Cache, deps.Clock)
	configController := controllers.NewConfigController(deps.Ledger.Rules(), deps.Clock.Location)

	api := r.Group("/api/v1")

	// Public
	api.GET("/rewards/leaderboard", middleware.RateLimitMiddleware(), rewardsController.Leaderboard)
	api.GET("/config/rewards", configController.GetRewardRules)

	learner := api.Group("/rewards")
	learner.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	learner.GET("/status", rewardsController.Status)
	learner.POST("/streak/check", rewardsController.CheckStreak)
	learner.POST("/login", rewardsController.Login)
	learner.GET("/transactions", rewardsController.Transactions)

	services := api.Group("")
	services.Use(middleware.ServiceKeyRequired())
	services.POST("/events/award", eventsController.Award)
	services.POST("/events/login", eventsController.Login)
	services.POST("/events/module-completed", eventsController.ModuleCompleted)
	services.POST("/events/lesson-completed", eventsController.LessonCompleted)
	services.POST("/events/quiz-completed", eventsController.QuizCompleted)
	services.GET("/admin/rewards/audit", eventsController.Audit)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
