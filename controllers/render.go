package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inkpress/middleware"
	"inkpress/utils"
)

// render executes an HTML template with navigation state injected from the
// session, so every page knows whether a user is logged in.
func render(ctx *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if username, ok := ctx.Get(middleware.ContextUsernameKey); ok {
		data["LoggedIn"] = true
		data["Username"] = username
	} else {
		data["LoggedIn"] = false
		if _, ok := data["Username"]; !ok {
			data["Username"] = ""
		}
	}
	ctx.HTML(status, name, data)
}

func renderNotFound(ctx *gin.Context, message string) {
	render(ctx, http.StatusNotFound, "error.html", gin.H{"Status": http.StatusNotFound, "Message": message})
	ctx.Abort()
}

func renderForbidden(ctx *gin.Context, message string) {
	render(ctx, http.StatusForbidden, "error.html", gin.H{"Status": http.StatusForbidden, "Message": message})
	ctx.Abort()
}

func renderServerError(ctx *gin.Context, err error) {
	if utils.Sugar != nil {
		utils.Sugar.Errorf("internal error on %s %s: %v", ctx.Request.Method, ctx.Request.URL.Path, err)
	}
	render(ctx, http.StatusInternalServerError, "error.html", gin.H{
		"Status":  http.StatusInternalServerError,
		"Message": "Something went wrong. Please try again later.",
	})
	ctx.Abort()
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func currentUsername(ctx *gin.Context) string {
	value, exists := ctx.Get(middleware.ContextUsernameKey)
	if !exists {
		return ""
	}
	username, _ := value.(string)
	return username
}
