package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nao1215/notifyhub/pkg/httpclient"
	"github.com/nao1215/notifyhub/pkg/middleware"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Pinger はストアの疎通確認を行う。ヘルスチェックで使う。
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port はリッスンポート。
	Port string
	// AllowedOrigins はCORSで許可するオリジン。空の場合はCORSヘッダーを付与しない。
	AllowedOrigins []string
	// Pinger はヘルスチェックで疎通を確認するストア。nilの場合は確認しない。
	Pinger Pinger
}

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// service は通知の操作をまとめる窓口。
	service *Service
	// pinger はヘルスチェックで疎通を確認するストア。
	pinger Pinger
	// logger はログ出力先。
	logger logrus.FieldLogger
}

// NewServer は新しい通知サーバーを生成する。
func NewServer(cfg ServerConfig, service *Service, logger logrus.FieldLogger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(middleware.CORS(cfg.AllowedOrigins))
	}

	s := &Server{
		router:  router,
		port:    cfg.Port,
		service: service,
		pinger:  cfg.Pinger,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("port", s.port).Info("通知サービスを起動します")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("通知サービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		notifications := api.Group("/notifications")
		{
			// 通知作成
			notifications.POST("", s.handleCreate())
			// 可視な通知一覧取得
			notifications.GET("", s.handleList())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnread())
			// 可視な通知をすべて既読にする
			notifications.PUT("/read-all", s.handleMarkAllRead())
			// 通知取得
			notifications.GET("/:id", s.handleGetByID())
			// 通知を既読にする
			notifications.PUT("/:id", s.handleMarkRead())
			notifications.PUT("/:id/read", s.handleMarkRead())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
}

// envelope はすべてのAPIレスポンスに共通の外形。
type envelope struct {
	// OK は処理が成功したかを表す。
	OK bool `json:"ok"`
	// StatusCode はHTTPステータスコード。
	StatusCode int `json:"statusCode"`
	// Message は処理結果の説明。
	Message string `json:"message"`
	// Data は処理結果のデータ。
	Data any `json:"data,omitempty"`
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// Tenant は通知が属するテナント。
	Tenant string `json:"tenant"`
	// Message は通知の本文。
	Message string `json:"message"`
	// Mode は宛先指定方式。
	Mode Mode `json:"mode"`
	// RecipientRoles はブロードキャスト通知の宛先ロール。
	RecipientRoles []string `json:"recipient_roles,omitempty"`
	// ReadBy はブロードキャスト通知を既読にした利用者ID。
	ReadBy []string `json:"read_by,omitempty"`
	// RecipientUsername はダイレクト通知の宛先ユーザー名。
	RecipientUsername string `json:"recipient_username,omitempty"`
	// ReadAt はダイレクト通知を既読にした日時（エポックミリ秒）。
	ReadAt *int64 `json:"read_at,omitempty"`
	// Iat は作成日時（エポックミリ秒）。
	Iat int64 `json:"iat"`
	// Version は既読状態の版数。
	Version int64 `json:"version"`
}

// toNotificationResponse は通知をJSONレスポンスに変換する。
func toNotificationResponse(n Notification) notificationResponse {
	resp := notificationResponse{
		ID:      n.ID,
		Tenant:  n.Tenant,
		Message: n.Message,
		Iat:     n.CreatedAt.UnixMilli(),
		Version: n.Version,
	}
	switch t := normalizeTarget(n.Target).(type) {
	case Broadcast:
		resp.Mode = ModeBroadcast
		resp.RecipientRoles = t.Roles
		resp.ReadBy = t.ReadBy
	case Direct:
		resp.Mode = ModeDirect
		resp.RecipientUsername = t.Username
		if !t.ReadAt.IsZero() {
			readAt := t.ReadAt.UnixMilli()
			resp.ReadAt = &readAt
		}
	}
	return resp
}

// toNotificationResponses は通知のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toNotificationResponse(n))
	}
	return responses
}

// createRequest は通知作成リクエストのJSON構造。
// msg と destinataries は旧クライアント向けの別名。
type createRequest struct {
	// Message は通知の本文。
	Message string `json:"message"`
	// Msg はMessageの別名。
	Msg string `json:"msg"`
	// Tenant は通知のテナント。数値も受け付ける。
	Tenant middleware.FlexibleID `json:"tenant"`
	// RecipientRoles はブロードキャスト通知の宛先ロール。
	RecipientRoles []string `json:"recipient_roles"`
	// Destinataries はRecipientRolesの別名。
	Destinataries []string `json:"destinataries"`
	// RecipientUsername はダイレクト通知の宛先ユーザー名。
	RecipientUsername string `json:"recipient_username"`
}

// toInput はリクエストを作成入力に変換する。別名は正式名が空の場合だけ使う。
func (r createRequest) toInput() CreateInput {
	in := CreateInput{
		Message:           r.Message,
		Tenant:            string(r.Tenant),
		RecipientRoles:    r.RecipientRoles,
		RecipientUsername: r.RecipientUsername,
	}
	if in.Message == "" {
		in.Message = r.Msg
	}
	if len(in.RecipientRoles) == 0 {
		in.RecipientRoles = r.Destinataries
	}
	return in
}

// requestContext はリクエストIDを引き継いだコンテキストを返す。イベント送信に伝播する。
func requestContext(c *gin.Context) context.Context {
	return httpclient.WithRequestID(c.Request.Context(), c.Writer.Header().Get("X-Request-ID"))
}

// handleCreate は通知を作成するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, fmt.Errorf("%w: %v", ErrInvalidArgument, err))
			return
		}

		n, err := s.service.Create(requestContext(c), middleware.BearerToken(c), req.toInput())
		if err != nil {
			s.respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, envelope{
			OK:         true,
			StatusCode: http.StatusCreated,
			Message:    "通知を作成しました",
			Data:       toNotificationResponse(n),
		})
	}
}

// handleList は利用者に可視な通知一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.service.ListForPrincipal(requestContext(c), middleware.BearerToken(c))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, envelope{
			OK:         true,
			StatusCode: http.StatusOK,
			Message:    "通知が見つかりました",
			Data:       toNotificationResponses(notifications),
		})
	}
}

// handleListUnread は利用者がまだ既読にしていない通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.service.ListUnread(requestContext(c), middleware.BearerToken(c))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, envelope{
			OK:         true,
			StatusCode: http.StatusOK,
			Message:    "未読の通知が見つかりました",
			Data:       toNotificationResponses(notifications),
		})
	}
}

// handleGetByID は指定された通知を返すハンドラ。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.service.Get(requestContext(c), middleware.BearerToken(c), c.Param("id"))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, envelope{
			OK:         true,
			StatusCode: http.StatusOK,
			Message:    "通知が見つかりました",
			Data:       toNotificationResponse(n),
		})
	}
}

// handleMarkRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.service.MarkRead(requestContext(c), middleware.BearerToken(c), c.Param("id"))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, envelope{
			OK:         true,
			StatusCode: http.StatusOK,
			Message:    "通知を既読にしました",
			Data:       toNotificationResponse(n),
		})
	}
}

// handleMarkAllRead は利用者に可視な通知をすべて既読にするハンドラ。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := s.service.MarkAllRead(requestContext(c), middleware.BearerToken(c))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, envelope{
			OK:         true,
			StatusCode: http.StatusOK,
			Message:    "通知をすべて既読にしました",
			Data:       gin.H{"updated": count},
		})
	}
}

// handleHealth はヘルスチェックのハンドラ。ストアに疎通できない場合は503を返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.pinger != nil {
			if err := s.pinger.Ping(c.Request.Context()); err != nil {
				s.logger.WithError(err).Warn("ストアへの疎通確認に失敗しました")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "notification"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	}
}

// statusOf はエラーの分類をHTTPステータスコードに対応付ける。
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError はエラーを共通の外形で返す。内部エラーの詳細はログにだけ出力する。
func (s *Server) respondError(c *gin.Context, err error) {
	status := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("リクエストの処理に失敗しました")
		message = ErrInternal.Error()
	}
	c.JSON(status, envelope{
		OK:         false,
		StatusCode: status,
		Message:    message,
	})
}
