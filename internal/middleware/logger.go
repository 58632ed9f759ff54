// Package middleware 提供 HTTP 请求的中间件
package middleware

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware 创建请求日志中间件
// 记录每个请求的方法、路径、状态码和耗时
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		start := time.Now()

		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		// 处理请求
		c.Next()

		latency := time.Since(start).Truncate(time.Microsecond)
		statusCode := c.Writer.Status()

		logLine := fmt.Sprintf("%3d | %12s | %15s | %-7s %s",
			statusCode, latency, c.ClientIP(), c.Request.Method, path)

		// 如果有错误信息，追加到日志
		if errMsg := c.Errors.ByType(gin.ErrorTypePrivate).String(); errMsg != "" {
			logLine += " | " + errMsg
		}

		// 根据状态码选择日志级别
		switch {
		case statusCode >= 500:
			log.Printf("[ERROR] %s", logLine)
		case statusCode >= 400:
			log.Printf("[WARN] %s", logLine)
		default:
			log.Printf("[INFO] %s", logLine)
		}
	}
}
