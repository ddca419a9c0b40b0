package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings はストアのサーキットブレーカーの設定。
type BreakerSettings struct {
	// Name はブレーカーの名前。状態遷移のログに出力する。
	Name string
	// MaxFailures は遮断状態に移る連続失敗回数。
	MaxFailures uint32
	// OpenTimeout は遮断状態から半開状態に移るまでの時間。
	OpenTimeout time.Duration
}

// BreakerStore はストアの呼び出しをサーキットブレーカーで保護するStore。
// 遮断中の呼び出しはストアに届かず、ErrInternalを返す。
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore はストアをサーキットブレーカーで包む。
func NewBreakerStore(next Store, settings BreakerSettings, logger logrus.FieldLogger) *BreakerStore {
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("サーキットブレーカーの状態が変わりました")
		},
		IsSuccessful: isStoreHealthy,
	})
	return &BreakerStore{next: next, cb: cb}
}

// isStoreHealthy はストアが正常に応答したかを判定する。
// 存在しない・競合・呼び出し側の中断はストアの障害として数えない。
func isStoreHealthy(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, context.Canceled)
}

// State は現在のブレーカーの状態を返す。
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// Create は通知を作成する。
func (s *BreakerStore) Create(ctx context.Context, d Draft) (Notification, error) {
	return execute(s.cb, func() (Notification, error) { return s.next.Create(ctx, d) })
}

// Get はIDで通知を取得する。
func (s *BreakerStore) Get(ctx context.Context, id string) (Notification, error) {
	return execute(s.cb, func() (Notification, error) { return s.next.Get(ctx, id) })
}

// Find は条件に合う通知を返す。
func (s *BreakerStore) Find(ctx context.Context, f Filter) ([]Notification, error) {
	return execute(s.cb, func() ([]Notification, error) { return s.next.Find(ctx, f) })
}

// UpdateReadState は版数を条件に既読状態を置き換える。
func (s *BreakerStore) UpdateReadState(ctx context.Context, id string, version int64, next Target) (Notification, error) {
	return execute(s.cb, func() (Notification, error) { return s.next.UpdateReadState(ctx, id, version, next) })
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, fmt.Errorf("%w: ストアへの呼び出しを遮断中です: %w", ErrInternal, err)
	}
	v, _ := res.(T)
	return v, err
}
