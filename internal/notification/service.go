package notification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nao1215/notifyhub/pkg/event"
)

// defaultMaxCASAttempts は既読状態の更新で競合した場合の試行回数のデフォルト値。
const defaultMaxCASAttempts = 8

// Options はServiceの動作を切り替える設定。
type Options struct {
	// Scope は可視性判定の範囲。
	Scope Scope
	// EmptyListNotFound が有効な場合、可視な通知が0件の一覧取得はErrNotFoundになる。
	EmptyListNotFound bool
	// EnforceGetVisibility が有効な場合、ID指定の取得でも受信者でなければErrUnauthorizedになる。
	EnforceGetVisibility bool
	// MaxCASAttempts は既読状態の比較交換の最大試行回数。0以下ならデフォルト値を使う。
	MaxCASAttempts int
	// Publisher は作成・既読のイベント送信先。nilなら送信しない。
	Publisher EventPublisher
	// Logger はログ出力先。nilなら標準のlogrusロガーを使う。
	Logger logrus.FieldLogger
	// Now は現在時刻を返す関数。nilならtime.Nowを使う。
	Now func() time.Time
}

// Service は通知の作成・一覧・取得・既読化をまとめる窓口。
// 資格情報の検証とストアの両方に触れるのはこの型だけ。
type Service struct {
	claims      ClaimsReader
	store       Store
	scope       Scope
	emptyIsNF   bool
	enforceGet  bool
	maxAttempts int
	publisher   EventPublisher
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewService は新しいServiceを生成する。
func NewService(claims ClaimsReader, store Store, opts Options) *Service {
	s := &Service{
		claims:      claims,
		store:       store,
		scope:       opts.Scope,
		emptyIsNF:   opts.EmptyListNotFound,
		enforceGet:  opts.EnforceGetVisibility,
		maxAttempts: opts.MaxCASAttempts,
		publisher:   opts.Publisher,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxCASAttempts
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateInput は通知作成の入力。RecipientRolesとRecipientUsernameのどちらか一方だけを指定する。
type CreateInput struct {
	// Message は通知の本文。必須。
	Message string
	// Tenant は通知のテナント。空の場合は作成者のテナントを使う。
	Tenant string
	// RecipientRoles はブロードキャスト通知の宛先ロール。
	RecipientRoles []string
	// RecipientUsername はダイレクト通知の宛先ユーザー名。
	RecipientUsername string
}

// authenticate は資格情報から利用者を復元する。
func (s *Service) authenticate(ctx context.Context, credential string) (Principal, error) {
	if credential == "" {
		return Principal{}, fmt.Errorf("%w: トークンが指定されていません", ErrUnauthorized)
	}
	p, err := s.claims.Verify(ctx, credential)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Principal{}, err
		}
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return p, nil
}

// Create は通知を作成する。宛先方式は指定されたフィールドで決まる。
func (s *Service) Create(ctx context.Context, credential string, in CreateInput) (Notification, error) {
	p, err := s.authenticate(ctx, credential)
	if err != nil {
		return Notification{}, err
	}

	draft, err := buildDraft(in, p)
	if err != nil {
		return Notification{}, err
	}

	n, err := s.store.Create(ctx, draft)
	if err != nil {
		return Notification{}, storeError("通知の作成", err)
	}

	s.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"mode":            n.Target.Mode(),
		"tenant":          n.Tenant,
		"created_by":      p.ID,
	}).Info("通知を作成しました")

	data := event.NotificationCreatedData{
		Tenant:    n.Tenant,
		Mode:      string(n.Target.Mode()),
		CreatedBy: p.ID,
	}
	switch t := n.Target.(type) {
	case Broadcast:
		data.RecipientRoles = t.Roles
	case Direct:
		data.RecipientUsername = t.Username
	}
	s.publish(ctx, n, event.TypeNotificationCreated, data)
	return n, nil
}

// buildDraft は作成入力を検証してDraftを組み立てる。
func buildDraft(in CreateInput, p Principal) (Draft, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return Draft{}, fmt.Errorf("%w: メッセージは必須です", ErrInvalidArgument)
	}

	roles := make([]string, 0, len(in.RecipientRoles))
	for _, r := range in.RecipientRoles {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(roles, r) {
			continue
		}
		roles = append(roles, r)
	}
	username := strings.TrimSpace(in.RecipientUsername)

	var target Target
	switch {
	case len(roles) > 0 && username != "":
		return Draft{}, fmt.Errorf("%w: 宛先ロールと宛先ユーザー名は同時に指定できません", ErrInvalidArgument)
	case len(roles) > 0:
		target = Broadcast{Roles: roles}
	case username != "":
		target = Direct{Username: username}
	default:
		return Draft{}, fmt.Errorf("%w: 宛先ロールか宛先ユーザー名のどちらかが必要です", ErrInvalidArgument)
	}

	tenant := strings.TrimSpace(in.Tenant)
	if tenant == "" {
		tenant = p.Tenant
	}
	return Draft{Tenant: tenant, Message: message, Target: target}, nil
}

// ListForPrincipal は利用者に可視な通知を作成日時の新しい順に返す。
func (s *Service) ListForPrincipal(ctx context.Context, credential string) ([]Notification, error) {
	p, err := s.authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	visible, err := s.visible(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(visible) == 0 && s.emptyIsNF {
		return nil, fmt.Errorf("%w: 可視な通知がありません", ErrNotFound)
	}
	return visible, nil
}

// ListUnread は利用者に可視な通知のうち、利用者がまだ既読にしていないものを返す。
func (s *Service) ListUnread(ctx context.Context, credential string) ([]Notification, error) {
	p, err := s.authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	visible, err := s.visible(ctx, p)
	if err != nil {
		return nil, err
	}
	unread := slices.DeleteFunc(visible, func(n Notification) bool { return HasRead(n, p) })
	if len(unread) == 0 && s.emptyIsNF {
		return nil, fmt.Errorf("%w: 未読の通知がありません", ErrNotFound)
	}
	return unread, nil
}

// visible はストアから通知を取得し、利用者に可視なものに絞り込む。
func (s *Service) visible(ctx context.Context, p Principal) ([]Notification, error) {
	var f Filter
	if s.scope.TenantScoped {
		f.Tenant = p.Tenant
		if f.Tenant == "" {
			return []Notification{}, nil
		}
	}
	all, err := s.store.Find(ctx, f)
	if err != nil {
		return nil, storeError("通知一覧の取得", err)
	}
	return VisibleTo(p, all, s.scope), nil
}

// Get はIDで通知を取得する。
func (s *Service) Get(ctx context.Context, credential, id string) (Notification, error) {
	p, err := s.authenticate(ctx, credential)
	if err != nil {
		return Notification{}, err
	}
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return Notification{}, storeError("通知の取得", err)
	}
	if s.enforceGet && !CanSee(p, n, s.scope) {
		return Notification{}, fmt.Errorf("%w: 通知 %s の受信者ではありません", ErrUnauthorized, id)
	}
	return n, nil
}

// MarkRead は利用者として通知を既読にし、更新後の通知を返す。
// 既に既読の場合も成功として扱い、既読状態は変わらない。
func (s *Service) MarkRead(ctx context.Context, credential, id string) (Notification, error) {
	p, err := s.authenticate(ctx, credential)
	if err != nil {
		return Notification{}, err
	}
	n, _, err := s.markRead(ctx, p, id)
	return n, err
}

// MarkAllRead は利用者に可視な未読の通知をすべて既読にし、既読状態が変わった件数を返す。
func (s *Service) MarkAllRead(ctx context.Context, credential string) (int, error) {
	p, err := s.authenticate(ctx, credential)
	if err != nil {
		return 0, err
	}
	visible, err := s.visible(ctx, p)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, n := range visible {
		if HasRead(n, p) {
			continue
		}
		_, changed, err := s.markRead(ctx, p, n.ID)
		if err != nil {
			// 一覧取得後に他の処理で状態が変わった通知は飛ばす
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
				continue
			}
			return count, err
		}
		if changed {
			count++
		}
	}
	return count, nil
}

// markRead は取得・既読状態の計算・比較交換を、競合しなくなるまで最大maxAttempts回繰り返す。
func (s *Service) markRead(ctx context.Context, p Principal, id string) (Notification, bool, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.store.Get(ctx, id)
		if err != nil {
			return Notification{}, false, storeError("通知の取得", err)
		}

		now := EpochMillis(s.now())
		next, changed, err := Reconcile(current, p, now, s.scope)
		if err != nil {
			return Notification{}, false, err
		}

		updated, err := s.store.UpdateReadState(ctx, id, current.Version, next)
		if errors.Is(err, ErrConflict) {
			s.logger.WithFields(logrus.Fields{
				"notification_id": id,
				"attempt":         attempt,
			}).Debug("既読状態の更新が競合したため再試行します")
			continue
		}
		if err != nil {
			return Notification{}, false, storeError("既読状態の更新", err)
		}

		if changed {
			s.logger.WithFields(logrus.Fields{
				"notification_id": id,
				"reader_id":       p.ID,
				"version":         updated.Version,
			}).Info("通知を既読にしました")
			s.publish(ctx, updated, event.TypeNotificationRead, event.NotificationReadData{
				ReaderID: p.ID,
				ReadAt:   now,
			})
		}
		return updated, changed, nil
	}
	return Notification{}, false, fmt.Errorf("%w: 通知 %s の既読状態の更新が%d回競合しました", ErrInternal, id, s.maxAttempts)
}

// publish はイベントを送信する。失敗してもログに記録するだけで、通知の処理は成功として扱う。
func (s *Service) publish(ctx context.Context, n Notification, eventType event.Type, data any) {
	ev, err := event.NewNotificationEvent(n.ID, eventType, n.Version, data, s.now())
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.WithError(err).WithField("notification_id", n.ID).Warn("イベントの送信に失敗しました")
	}
}

// storeError はストアのエラーを分類する。分類済みのエラーはそのまま、それ以外はInternalとして返す。
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInternal):
		return fmt.Errorf("%sに失敗: %w", op, err)
	default:
		return fmt.Errorf("%w: %sに失敗: %w", ErrInternal, op, err)
	}
}
