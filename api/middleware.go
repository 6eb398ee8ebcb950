package api

import (
	"net/http"
	"strings"
	"time"

	"backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// gin 上下文键
const (
	ContextTenantID = "tenant_id"
	ContextKBID     = "kb_id"
	ContextUserID   = "user_id"
)

// 租户身份请求头
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderKBID     = "X-KB-ID"
	HeaderUserID   = "X-User-ID"
)

// RequestLogger 请求日志中间件
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.WithContext(c.Request.Context()).Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// RequestID 为每个请求注入请求 ID,便于日志关联
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// TenantContext 从请求头提取租户身份,tenant_id 缺失直接拒绝
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(HeaderTenantID))
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "缺少 " + HeaderTenantID + " 请求头",
			})
			return
		}

		kbID := strings.TrimSpace(c.GetHeader(HeaderKBID))
		if kbID == "" {
			kbID = "default"
		}
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			userID = "anonymous"
		}

		c.Set(ContextTenantID, tenantID)
		c.Set(ContextKBID, kbID)
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// CORS 跨域中间件
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type", "Content-Length", "Accept-Encoding", "Authorization",
			"Accept", "Origin", "Cache-Control", "X-Requested-With",
			HeaderTenantID, HeaderKBID, HeaderUserID,
		}, ", "))
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Max-Age", "600")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
