package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"inkpress/config"
	"inkpress/controllers"
	"inkpress/middleware"
	"inkpress/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, drafts utils.DraftStore) *gin.Engine {
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
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Recovery())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.LoadHTMLGlob("templates/*.html")
	r.Static("/static", "./static")

	authController := controllers.NewAuthController(db)
	postController := controllers.NewPostController(db, drafts)

	// Public pages
	r.GET("/", middleware.CurrentUser(), postController.Index)
	r.GET("/home", middleware.CurrentUser(), postController.Home)
	r.GET("/article/:id", middleware.CurrentUser(), postController.Show)
	r.POST("/preview", middleware.CurrentUser(), postController.Preview)
	r.POST("/autosave", middleware.CurrentUser(), postController.Autosave)

	// Account lifecycle; the credential endpoints are rate limited
	r.GET("/login", middleware.CurrentUser(), authController.LoginForm)
	r.POST("/login", middleware.RateLimitMiddleware(), authController.Login)
	r.GET("/register", middleware.CurrentUser(), authController.RegisterForm)
	r.POST("/register", middleware.RateLimitMiddleware(), authController.Register)
	r.GET("/logout", authController.Logout)

	// Mutating operations require a session
	r.GET("/create", middleware.AuthRequired(), postController.NewForm)
	r.POST("/create", middleware.AuthRequired(), postController.Create)
	r.GET("/:id/update", middleware.AuthRequired(), postController.EditForm)
	r.POST("/:id/update", middleware.AuthRequired(), postController.Update)
	r.POST("/:id/delete", middleware.AuthRequired(), postController.Delete)

	r.NoRoute(func(ctx *gin.Context) {
		ctx.HTML(http.StatusNotFound, "error.html", gin.H{
			"Status":  http.StatusNotFound,
			"Message": "Page not found.",
		})
	})

	return r
}
