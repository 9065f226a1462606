package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inkpress/utils"
)

// RequestLogger logs each completed request through the global zap logger.
func RequestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		path := ctx.Request.URL.Path

		ctx.Next()

		if utils.Logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", ctx.Request.Method),
			zap.String("path", path),
			zap.Int("status", ctx.Writer.Status()),
			zap.String("ip", ctx.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(ctx.Errors) > 0 {
			fields = append(fields, zap.String("errors", ctx.Errors.String()))
		}
		utils.Logger.Info("request", fields...)
	}
}

// Recovery turns panics into logged 500 responses instead of dropped connections.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(ctx *gin.Context, err interface{}) {
		if utils.Sugar != nil {
			utils.Sugar.Errorf("panic recovered: %v", err)
		}
		ctx.AbortWithStatus(http.StatusInternalServerError)
	})
}
