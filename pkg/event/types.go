package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

// AggregateTypeNotification は通知エンティティを表す。
const AggregateTypeNotification AggregateType = "Notification"

// Type はイベントの種類を表す。
type Type string

const (
	// TypeNotificationCreated は通知が作成されたことを表す。
	TypeNotificationCreated Type = "NotificationCreated"
	// TypeNotificationRead は受信者が通知を既読にしたことを表す。
	TypeNotificationRead Type = "NotificationRead"
)

// Event はEvent Storeに追記される不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。通知の既読状態のバージョンと一致させる。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// NotificationCreatedData はNotificationCreatedイベントのデータ。
type NotificationCreatedData struct {
	// Tenant は通知のテナント。
	Tenant string `json:"tenant"`
	// Mode は宛先指定の方式（broadcast または direct）。
	Mode string `json:"mode"`
	// RecipientRoles はブロードキャスト通知の宛先ロール。
	RecipientRoles []string `json:"recipient_roles,omitempty"`
	// RecipientUsername はダイレクト通知の宛先ユーザー名。
	RecipientUsername string `json:"recipient_username,omitempty"`
	// CreatedBy は通知を作成した利用者のID。
	CreatedBy string `json:"created_by"`
}

// NotificationReadData はNotificationReadイベントのデータ。
type NotificationReadData struct {
	// ReaderID は既読にした利用者のID。
	ReaderID string `json:"reader_id"`
	// ReadAt は既読にした日時。
	ReadAt time.Time `json:"read_at"`
}
