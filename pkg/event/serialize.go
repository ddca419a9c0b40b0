package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewNotificationEvent は通知を対象とするイベントを生成する。
// dataにはイベント固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func NewNotificationEvent(notificationID string, eventType Type, version int64, data any, now time.Time) (*Event, error) {
	if notificationID == "" {
		return nil, fmt.Errorf("通知IDが空です")
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	return &Event{
		ID:            uuid.NewString(),
		AggregateID:   "notification-" + notificationID,
		AggregateType: AggregateTypeNotification,
		EventType:     eventType,
		Data:          jsonData,
		Version:       version,
		CreatedAt:     now.UTC(),
	}, nil
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
