package notification

import (
	"context"
	"fmt"

	"github.com/nao1215/notifyhub/pkg/event"
	"github.com/nao1215/notifyhub/pkg/httpclient"
)

// EventStorePublisher はEvent StoreのHTTP APIにイベントを追記するEventPublisher。
type EventStorePublisher struct {
	client *httpclient.Client
}

// NewEventStorePublisher はEvent Store向けのクライアントからEventStorePublisherを生成する。
func NewEventStorePublisher(client *httpclient.Client) *EventStorePublisher {
	return &EventStorePublisher{client: client}
}

// Publish はイベントをEvent Storeに送信する。
func (p *EventStorePublisher) Publish(ctx context.Context, ev *event.Event) error {
	if err := p.client.PostJSON(ctx, "/api/v1/events", ev, nil); err != nil {
		return fmt.Errorf("%sイベントの送信に失敗: %w", ev.EventType, err)
	}
	return nil
}

// nopPublisher はイベントを送信しないEventPublisher。Event Storeが未設定の場合に使う。
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *event.Event) error { return nil }
