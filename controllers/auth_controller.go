package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"inkpress/config"
	"inkpress/middleware"
	"inkpress/models"
	"inkpress/utils"
)

const sessionTTL = 72 * time.Hour

// AuthController handles registration, login and logout.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// LoginForm renders the login page.
func (a *AuthController) LoginForm(ctx *gin.Context) {
	render(ctx, http.StatusOK, "login.html", nil)
}

// Login verifies credentials and establishes the session cookie.
func (a *AuthController) Login(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.PostForm("username"))
	password := ctx.PostForm("password")

	if username == "" || password == "" {
		render(ctx, http.StatusOK, "login.html", gin.H{"Error": "Username and password are required.", "Username": username})
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", username).First(&user).Error; err != nil {
		render(ctx, http.StatusOK, "login.html", gin.H{"Error": "Invalid username or password.", "Username": username})
		return
	}

	if !utils.CheckPassword(user.PasswordHash, password) {
		render(ctx, http.StatusOK, "login.html", gin.H{"Error": "Invalid username or password.", "Username": username})
		return
	}

	if err := a.startSession(ctx, user); err != nil {
		renderServerError(ctx, err)
		return
	}
	ctx.Redirect(http.StatusFound, "/")
}

// RegisterForm renders the signup page.
func (a *AuthController) RegisterForm(ctx *gin.Context) {
	if !config.Get().SignupEnabled {
		renderForbidden(ctx, "Sign up has been disabled.")
		return
	}
	render(ctx, http.StatusOK, "register.html", nil)
}

// Register creates a new user and logs them in.
func (a *AuthController) Register(ctx *gin.Context) {
	if !config.Get().SignupEnabled {
		renderForbidden(ctx, "Sign up has been disabled.")
		return
	}

	username := strings.TrimSpace(ctx.PostForm("username"))
	password := ctx.PostForm("password")

	var errMsg string
	switch {
	case username == "":
		errMsg = "Username is required."
	case len(username) > 64:
		errMsg = "Username is too long."
	case password == "":
		errMsg = "Password is required."
	}
	if errMsg == "" {
		var count int64
		if err := a.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			renderServerError(ctx, err)
			return
		}
		if count != 0 {
			errMsg = "Username is already taken."
		}
	}
	if errMsg != "" {
		render(ctx, http.StatusOK, "register.html", gin.H{"Error": errMsg, "Username": username})
		return
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		renderServerError(ctx, err)
		return
	}

	user := models.User{Username: username, PasswordHash: hash}
	if err := a.db.Create(&user).Error; err != nil {
		renderServerError(ctx, err)
		return
	}

	if err := a.startSession(ctx, user); err != nil {
		renderServerError(ctx, err)
		return
	}
	ctx.Redirect(http.StatusFound, "/")
}

// Logout revokes the live token until its natural expiry and clears the cookie.
func (a *AuthController) Logout(ctx *gin.Context) {
	if token, err := ctx.Cookie(middleware.AuthCookieName); err == nil && token != "" {
		if claims, err := utils.ParseToken(token); err == nil && claims.ExpiresAt != nil {
			utils.BlacklistToken(token, claims.ExpiresAt.Time)
		}
	}
	ctx.SetCookie(middleware.AuthCookieName, "", -1, "/", "", false, true)
	ctx.Redirect(http.StatusFound, "/")
}

func (a *AuthController) startSession(ctx *gin.Context, user models.User) error {
	token, err := utils.GenerateToken(user.ID, user.Username, sessionTTL)
	if err != nil {
		return err
	}
	ctx.SetCookie(middleware.AuthCookieName, token, int(sessionTTL.Seconds()), "/", "", false, true)
	return nil
}
