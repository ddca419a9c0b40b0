package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// headerKeyRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const headerKeyRequestID = "X-Request-ID"

// RequestLogger はリクエストごとにアクセスログを出力するGinミドルウェアを返す。
// リクエストIDがない場合は採番し、レスポンスヘッダーにも設定する。
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(headerKeyRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerKeyRequestID, requestID)

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("リクエスト処理完了")
		case status >= 400:
			entry.Warn("リクエスト処理完了")
		default:
			entry.Info("リクエスト処理完了")
		}
	}
}
