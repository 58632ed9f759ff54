// Package middleware 提供 HTTP 请求的中间件
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig CORS 跨域配置
type CORSConfig struct {
	AllowOrigins     []string // 允许的来源，如 ["http://localhost:3000"]
	AllowMethods     []string // 允许的 HTTP 方法
	AllowHeaders     []string // 允许的请求头
	AllowCredentials bool     // 是否允许携带凭据（Cookie）
	MaxAge           int      // 预检请求结果的缓存时间（秒）
}

// DefaultCORSConfig 返回默认的 CORS 配置
// 默认允许所有来源，适用于开发环境
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"}, // 生产环境应该限制来源
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
		},
		AllowCredentials: true,
		MaxAge:           86400, // 24 小时
	}
}

// CORSMiddleware 创建 CORS 跨域中间件
// 参数:
//   - config: CORS 配置，不传使用默认配置
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func CORSMiddleware(config ...CORSConfig) gin.HandlerFunc {
	cfg := DefaultCORSConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		// 检查来源是否被允许
		allowOrigin := ""
		if len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*" {
			allowOrigin = "*"
		} else {
			for _, o := range cfg.AllowOrigins {
				if o == origin {
					allowOrigin = origin
					break
				}
			}
		}

		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			if cfg.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		// 处理预检请求（OPTIONS）
		// 浏览器在发送"非简单请求"前，会先发送 OPTIONS 请求检查服务器是否允许
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
			c.Header("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
			if cfg.MaxAge > 0 {
				c.Header("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}

			// 预检请求直接返回 204，不继续处理
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
