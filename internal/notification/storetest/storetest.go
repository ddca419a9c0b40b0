// Package storetest はnotification.Storeの実装が満たすべき振る舞いを検証する共通テストを提供する。
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/notifyhub/internal/notification"
)

// Run はnewStoreが返すStoreに対して共通テストを実行する。
// newStoreはサブテストごとに空のStoreを返す必要がある。
func Run(t *testing.T, newStore func(t *testing.T) notification.Store) {
	t.Helper()

	t.Run("ブロードキャスト通知を作成して取得できること", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		created, err := store.Create(ctx, notification.Draft{
			Tenant:  "7",
			Message: "メンテナンスのお知らせ",
			Target:  notification.Broadcast{Roles: []string{"admin", "ops team", `a,b"c`}},
		})
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		if created.ID == "" {
			t.Fatal("IDが採番されていない")
		}
		if created.Version != 1 {
			t.Errorf("Version = %d, want 1", created.Version)
		}
		if created.CreatedAt.IsZero() {
			t.Error("CreatedAtが設定されていない")
		}

		got, err := store.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if got.Message != "メンテナンスのお知らせ" || got.Tenant != "7" {
			t.Errorf("Get() = %+v", got)
		}
		b, ok := got.Target.(notification.Broadcast)
		if !ok {
			t.Fatalf("Target = %T, want Broadcast", got.Target)
		}
		if !slices.Equal(b.Roles, []string{"admin", "ops team", `a,b"c`}) {
			t.Errorf("Roles = %q", b.Roles)
		}
		if len(b.ReadBy) != 0 {
			t.Errorf("ReadBy = %q, want empty", b.ReadBy)
		}
		if !got.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
		}
	})

	t.Run("ダイレクト通知を作成して取得できること", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		created, err := store.Create(ctx, notification.Draft{
			Message: "承認されました",
			Target:  notification.Direct{Username: "alice"},
		})
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		got, err := store.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		d, ok := got.Target.(notification.Direct)
		if !ok {
			t.Fatalf("Target = %T, want Direct", got.Target)
		}
		if d.Username != "alice" || !d.ReadAt.IsZero() {
			t.Errorf("Direct = %+v", d)
		}
	})

	t.Run("存在しないIDはErrNotFoundになること", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
		if !errors.Is(err, notification.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
		_, err = store.UpdateReadState(context.Background(), "00000000-0000-0000-0000-000000000000", 1,
			notification.Broadcast{Roles: []string{"x"}, ReadBy: []string{"1"}})
		if !errors.Is(err, notification.ErrNotFound) {
			t.Errorf("UpdateReadState() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("一覧は作成日時の新しい順でテナントで絞り込めること", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var ids []string
		for i, tenant := range []string{"1", "2", "1"} {
			n, err := store.Create(ctx, notification.Draft{
				Tenant:  tenant,
				Message: "お知らせ",
				Target:  notification.Broadcast{Roles: []string{"member"}},
			})
			if err != nil {
				t.Fatalf("Create(%d)でエラーが発生: %v", i, err)
			}
			ids = append(ids, n.ID)
			// 作成日時はミリ秒精度のため間隔を空ける
			time.Sleep(5 * time.Millisecond)
		}

		all, err := store.Find(ctx, notification.Filter{})
		if err != nil {
			t.Fatalf("Find()でエラーが発生: %v", err)
		}
		if got := notificationIDs(all); !slices.Equal(got, []string{ids[2], ids[1], ids[0]}) {
			t.Errorf("Find() = %v, want %v", got, []string{ids[2], ids[1], ids[0]})
		}

		scoped, err := store.Find(ctx, notification.Filter{Tenant: "1"})
		if err != nil {
			t.Fatalf("Find(tenant)でエラーが発生: %v", err)
		}
		if got := notificationIDs(scoped); !slices.Equal(got, []string{ids[2], ids[0]}) {
			t.Errorf("Find(tenant) = %v, want %v", got, []string{ids[2], ids[0]})
		}
	})

	t.Run("版数が一致する場合だけ既読状態を更新できること", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		created, err := store.Create(ctx, notification.Draft{
			Message: "お知らせ",
			Target:  notification.Broadcast{Roles: []string{"member"}},
		})
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}

		next := notification.Broadcast{Roles: []string{"member"}, ReadBy: []string{"42"}}
		updated, err := store.UpdateReadState(ctx, created.ID, created.Version, next)
		if err != nil {
			t.Fatalf("UpdateReadState()でエラーが発生: %v", err)
		}
		if updated.Version != created.Version+1 {
			t.Errorf("Version = %d, want %d", updated.Version, created.Version+1)
		}
		if b := updated.Target.(notification.Broadcast); !slices.Equal(b.ReadBy, []string{"42"}) {
			t.Errorf("ReadBy = %q, want [42]", b.ReadBy)
		}

		// 古い版数での更新は競合になり、保存内容は変わらない
		stale := notification.Broadcast{Roles: []string{"member"}, ReadBy: []string{"99"}}
		_, err = store.UpdateReadState(ctx, created.ID, created.Version, stale)
		if !errors.Is(err, notification.ErrConflict) {
			t.Fatalf("UpdateReadState() error = %v, want ErrConflict", err)
		}
		got, err := store.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if b := got.Target.(notification.Broadcast); !slices.Equal(b.ReadBy, []string{"42"}) {
			t.Errorf("競合後のReadBy = %q, want [42]", b.ReadBy)
		}
	})

	t.Run("ダイレクト通知の既読日時をミリ秒精度で保存できること", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		created, err := store.Create(ctx, notification.Draft{
			Message: "お知らせ",
			Target:  notification.Direct{Username: "bob"},
		})
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}

		readAt := time.UnixMilli(1700000000123).UTC()
		updated, err := store.UpdateReadState(ctx, created.ID, created.Version,
			notification.Direct{Username: "bob", ReadAt: readAt})
		if err != nil {
			t.Fatalf("UpdateReadState()でエラーが発生: %v", err)
		}
		if d := updated.Target.(notification.Direct); !d.ReadAt.Equal(readAt) {
			t.Errorf("ReadAt = %v, want %v", d.ReadAt, readAt)
		}
	})

	t.Run("宛先方式の異なる更新は受け付けないこと", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		created, err := store.Create(ctx, notification.Draft{
			Message: "お知らせ",
			Target:  notification.Direct{Username: "bob"},
		})
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		_, err = store.UpdateReadState(ctx, created.ID, created.Version,
			notification.Broadcast{Roles: []string{"x"}, ReadBy: []string{"1"}})
		if err == nil || errors.Is(err, notification.ErrConflict) {
			t.Errorf("UpdateReadState() error = %v, want non-conflict error", err)
		}
	})

	t.Run("宛先のない作成はErrInvalidArgumentになること", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Create(context.Background(), notification.Draft{
			Message: "お知らせ",
			Target:  notification.Broadcast{},
		})
		if !errors.Is(err, notification.ErrInvalidArgument) {
			t.Errorf("Create() error = %v, want ErrInvalidArgument", err)
		}
	})
}

func notificationIDs(ns []notification.Notification) []string {
	ids := make([]string, 0, len(ns))
	for _, n := range ns {
		ids = append(ids, n.ID)
	}
	return ids
}
