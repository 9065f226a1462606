package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inkpress/utils"
)

const (
	// ContextUserIDKey is the key used to store the authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// AuthCookieName is the cookie carrying the session JWT.
	AuthCookieName = "token"
)

// authenticate resolves the session cookie into verified claims.
func authenticate(ctx *gin.Context) (*utils.Claims, bool) {
	token, err := ctx.Cookie(AuthCookieName)
	if err != nil || token == "" {
		return nil, false
	}
	if utils.IsTokenBlacklisted(token) {
		return nil, false
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// AuthRequired gates mutating operations: unauthenticated browsers are
// redirected to the login page and the handler never runs.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims, ok := authenticate(ctx)
		if !ok {
			ctx.Redirect(http.StatusFound, "/login")
			ctx.Abort()
			return
		}
		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Next()
	}
}

// CurrentUser populates the acting user on public pages when a valid session
// exists, without requiring one.
func CurrentUser() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if claims, ok := authenticate(ctx); ok {
			ctx.Set(ContextUserIDKey, claims.UserID)
			ctx.Set(ContextUsernameKey, claims.Username)
		}
		ctx.Next()
	}
}
