package notification

import (
	"context"

	"github.com/nao1215/notifyhub/pkg/event"
)

// Store は通知の永続化を担う。
//
// UpdateReadStateは通知IDごとにアトミックな比較交換でなければならない。保存されている版数が
// versionと一致する場合に限り既読状態をnextで置き換えて版数を1つ進め、更新後の通知を返す。
// 版数が一致しない場合はErrConflict、通知が存在しない場合はErrNotFoundを返す。
type Store interface {
	// Create は通知を作成し、採番したIDと作成日時、版数1を設定して返す。
	Create(ctx context.Context, d Draft) (Notification, error)
	// Get はIDで通知を取得する。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, id string) (Notification, error)
	// Find は条件に合う通知を作成日時の新しい順に返す。
	Find(ctx context.Context, f Filter) ([]Notification, error)
	// UpdateReadState は版数を条件に既読状態を置き換える。
	UpdateReadState(ctx context.Context, id string, version int64, next Target) (Notification, error)
}

// ClaimsReader はベアラートークンを検証して利用者を復元する。
type ClaimsReader interface {
	// Verify は資格情報を検証する。欠落・不正な場合はErrUnauthorizedを返す。
	Verify(ctx context.Context, credential string) (Principal, error)
}

// EventPublisher は通知のイベントを外部に送信する。
type EventPublisher interface {
	// Publish はイベントを送信する。
	Publish(ctx context.Context, ev *event.Event) error
}
