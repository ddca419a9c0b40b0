package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nao1215/notifyhub/pkg/event"
	"github.com/nao1215/notifyhub/pkg/logging"
)

// stubClaims はトークン文字列をそのまま利用者に対応付けるClaimsReader。
type stubClaims map[string]Principal

func (s stubClaims) Verify(_ context.Context, credential string) (Principal, error) {
	p, ok := s[credential]
	if !ok {
		return Principal{}, fmt.Errorf("%w: 不明なトークン", ErrUnauthorized)
	}
	return p, nil
}

// テストで使う利用者。
var testPrincipals = stubClaims{
	"ops":   {ID: "1", Username: "olivia", Tenant: "1", Roles: []string{"ops"}},
	"sales": {ID: "2", Username: "sam", Tenant: "1", Roles: []string{"sales"}},
	"alice": {ID: "3", Username: "alice", Tenant: "1", Roles: []string{"member"}},
	"bob":   {ID: "4", Username: "bob", Tenant: "2", Roles: []string{"member", "ops"}},
	"admin": {ID: "5", Username: "root", Tenant: "1", Roles: []string{"admin"}},
}

// recordingPublisher は送信されたイベントを記録するEventPublisher。
type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]event.Type, 0, len(p.events))
	for _, ev := range p.events {
		types = append(types, ev.EventType)
	}
	return types
}

// newTestSQLiteStore はテスト用のインメモリSQLiteでSQLiteStoreを構築する。
func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	// インメモリDBは接続ごとに別のDBになるため1接続に固定する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store, err := NewSQLiteStore(context.Background(), sqlDB, logging.Discard())
	if err != nil {
		t.Fatalf("SQLiteStoreの作成に失敗: %v", err)
	}
	return store
}

// defaultOptions は設定のデフォルト値に合わせたOptionsを返す。
func defaultOptions() Options {
	return Options{
		EmptyListNotFound:    true,
		EnforceGetVisibility: true,
		Logger:               logging.Discard(),
	}
}

// newTestService はSQLiteStoreを使うServiceを構築する。
func newTestService(t *testing.T, opts Options) (*Service, *SQLiteStore) {
	t.Helper()
	store := newTestSQLiteStore(t)
	return NewService(testPrincipals, store, opts), store
}

// mustCreate は通知を作成し、失敗した場合はテストを中断する。
func mustCreate(t *testing.T, s *Service, credential string, in CreateInput) Notification {
	t.Helper()
	n, err := s.Create(context.Background(), credential, in)
	if err != nil {
		t.Fatalf("Create()でエラーが発生: %v", err)
	}
	return n
}

func TestService_Scenarios(t *testing.T) {
	t.Parallel()

	t.Run("ロールが重なる利用者にだけブロードキャスト通知が見えること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestService(t, defaultOptions())
		ctx := context.Background()
		n := mustCreate(t, s, "admin", CreateInput{Message: "maintenance", RecipientRoles: []string{"admin", "ops"}})

		visible, err := s.ListForPrincipal(ctx, "ops")
		if err != nil {
			t.Fatalf("ListForPrincipal(ops)でエラーが発生: %v", err)
		}
		if len(visible) != 1 || visible[0].ID != n.ID {
			t.Errorf("ListForPrincipal(ops) = %+v, want [%s]", visible, n.ID)
		}

		_, err = s.ListForPrincipal(ctx, "sales")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ListForPrincipal(sales) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ダイレクト通知は宛先ユーザーだけが既読にできること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestService(t, defaultOptions())
		ctx := context.Background()
		n := mustCreate(t, s, "admin", CreateInput{Message: "hi", RecipientUsername: "alice"})

		visible, err := s.ListForPrincipal(ctx, "alice")
		if err != nil {
			t.Fatalf("ListForPrincipal(alice)でエラーが発生: %v", err)
		}
		if len(visible) != 1 || visible[0].ID != n.ID {
			t.Errorf("ListForPrincipal(alice) = %+v", visible)
		}

		updated, err := s.MarkRead(ctx, "alice", n.ID)
		if err != nil {
			t.Fatalf("MarkRead(alice)でエラーが発生: %v", err)
		}
		if updated.Target.(Direct).ReadAt.IsZero() {
			t.Error("ReadAtが設定されていない")
		}

		_, err = s.MarkRead(ctx, "bob", n.ID)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("MarkRead(bob) error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("存在しない通知の既読化はErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestService(t, defaultOptions())
		_, err := s.MarkRead(context.Background(), "alice", "no-such-id")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("MarkRead() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("空のストアの一覧取得はErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestService(t, defaultOptions())
		_, err := s.ListForPrincipal(context.Background(), "alice")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ListForPrincipal() error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_Authentication(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, defaultOptions())
	ctx := context.Background()

	calls := map[string]func(credential string) error{
		"Create": func(c string) error {
			_, err := s.Create(ctx, c, CreateInput{Message: "m", RecipientUsername: "alice"})
			return err
		},
		"ListForPrincipal": func(c string) error { _, err := s.ListForPrincipal(ctx, c); return err },
		"ListUnread":       func(c string) error { _, err := s.ListUnread(ctx, c); return err },
		"Get":              func(c string) error { _, err := s.Get(ctx, c, "id"); return err },
		"MarkRead":         func(c string) error { _, err := s.MarkRead(ctx, c, "id"); return err },
		"MarkAllRead":      func(c string) error { _, err := s.MarkAllRead(ctx, c); return err },
	}
	for name, call := range calls {
		for _, credential := range []string{"", "forged"} {
			if err := call(credential); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("%s(%q) error = %v, want ErrUnauthorized", name, credential, err)
			}
		}
	}
}

func TestService_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      CreateInput
		wantErr error
		check   func(t *testing.T, n Notification)
	}{
		{
			name: "ロールを指定するとブロードキャスト通知になり重複が除かれること",
			in:   CreateInput{Message: " maintenance ", RecipientRoles: []string{"ops", " admin", "ops", ""}},
			check: func(t *testing.T, n Notification) {
				b, ok := n.Target.(Broadcast)
				if !ok {
					t.Fatalf("Target = %T, want Broadcast", n.Target)
				}
				if !slices.Equal(b.Roles, []string{"ops", "admin"}) {
					t.Errorf("Roles = %q, want [ops admin]", b.Roles)
				}
				if n.Message != "maintenance" {
					t.Errorf("Message = %q", n.Message)
				}
			},
		},
		{
			name: "ユーザー名を指定するとダイレクト通知になること",
			in:   CreateInput{Message: "hi", RecipientUsername: "alice"},
			check: func(t *testing.T, n Notification) {
				if d, ok := n.Target.(Direct); !ok || d.Username != "alice" {
					t.Errorf("Target = %+v", n.Target)
				}
			},
		},
		{
			name: "テナント省略時は作成者のテナントになること",
			in:   CreateInput{Message: "hi", RecipientUsername: "alice"},
			check: func(t *testing.T, n Notification) {
				if n.Tenant != "1" {
					t.Errorf("Tenant = %q, want 1", n.Tenant)
				}
			},
		},
		{
			name: "テナントを指定できること",
			in:   CreateInput{Message: "hi", Tenant: "9", RecipientUsername: "alice"},
			check: func(t *testing.T, n Notification) {
				if n.Tenant != "9" {
					t.Errorf("Tenant = %q, want 9", n.Tenant)
				}
			},
		},
		{
			name:    "メッセージが空白だけの場合はErrInvalidArgumentになること",
			in:      CreateInput{Message: "  ", RecipientUsername: "alice"},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "宛先がない場合はErrInvalidArgumentになること",
			in:      CreateInput{Message: "hi", RecipientRoles: []string{" "}},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "ロールとユーザー名の両方を指定するとErrInvalidArgumentになること",
			in:      CreateInput{Message: "hi", RecipientRoles: []string{"ops"}, RecipientUsername: "alice"},
			wantErr: ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _ := newTestService(t, defaultOptions())
			n, err := s.Create(context.Background(), "admin", tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create()でエラーが発生: %v", err)
			}
			if n.ID == "" || n.Version != 1 || n.CreatedAt.IsZero() {
				t.Errorf("Create() = %+v", n)
			}
			tt.check(t, n)
		})
	}
}

func TestService_MarkRead(t *testing.T) {
	t.Parallel()

	t.Run("同じ利用者の既読化を繰り返しても状態が変わらないこと", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestService(t, defaultOptions())
		ctx := context.Background()
		n := mustCreate(t, s, "admin", CreateInput{Message: "m", RecipientRoles: []string{"member"}})

		first, err := s.MarkRead(ctx, "alice", n.ID)
		if err != nil {
			t.Fatalf("1回目のMarkRead()でエラーが発生: %v", err)
		}
		second, err := s.MarkRead(ctx, "alice", n.ID)
		if err != nil {
			t.Fatalf("2回目のMarkRead()でエラーが発生: %v", err)
		}
		if !slices.Equal(first.Target.(Broadcast).ReadBy, []string{"3"}) ||
			!slices.Equal(second.Target.(Broadcast).ReadBy, []string{"3"}) {
			t.Errorf("ReadBy = %q, %q, want [3]", first.Target.(Broadcast).ReadBy, second.Target.(Broadcast).ReadBy)
		}
	})

	t.Run("既読者の集合は単調に増えること", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestService(t, defaultOptions())
		ctx := context.Background()
		n := mustCreate(t, s, "admin", CreateInput{Message: "m", RecipientRoles: []string{"member", "ops"}})

		var prev []string
		for _, credential := range []string{"alice", "ops", "alice", "bob"} {
			updated, err := s.MarkRead(ctx, credential, n.ID)
			if err != nil {
				t.Fatalf("MarkRead(%s)でエラーが発生: %v", credential, err)
			}
			readBy := updated.Target.(Broadcast).ReadBy
			for _, id := range prev {
				if !slices.Contains(readBy, id) {
					t.Errorf("MarkRead(%s)後に %s が既読者から消えた: %q", credential, id, readBy)
				}
			}
			prev = readBy
		}
		if !slices.Equal(prev, []string{"3", "1", "4"}) {
			t.Errorf("ReadBy = %q, want [3 1 4]", prev)
		}
	})

	t.Run("ダイレクト通知の既読日時は最初の既読化で固定されること", func(t *testing.T) {
		t.Parallel()

		var tick atomic.Int64
		opts := defaultOptions()
		opts.Now = func() time.Time {
			return time.UnixMilli(1700000000000 + tick.Add(1000)).UTC()
		}
		s, _ := newTestService(t, opts)
		ctx := context.Background()
		n := mustCreate(t, s, "admin", CreateInput{Message: "m", RecipientUsername: "alice"})

		first, err := s.MarkRead(ctx, "alice", n.ID)
		if err != nil {
			t.Fatalf("1回目のMarkRead()でエラーが発生: %v", err)
		}
		second, err := s.MarkRead(ctx, "alice", n.ID)
		if err != nil {
			t.Fatalf("2回目のMarkRead()でエラーが発生: %v", err)
		}
		a, b := first.Target.(Direct).ReadAt, second.Target.(Direct).ReadAt
		if a.IsZero() || !a.Equal(b) {
			t.Errorf("ReadAt = %v, %v, want equal non-zero", a, b)
		}
	})

	t.Run("異なる利用者の同時の既読化がすべて反映されること", func(t *testing.T) {
		t.Parallel()

		const readers = 8
		claims := stubClaims{"admin": testPrincipals["admin"]}
		for i := range readers {
			claims[fmt.Sprintf("user-%d", i)] = Principal{ID: fmt.Sprintf("%d", 100+i), Roles: []string{"member"}}
		}
		store := newTestSQLiteStore(t)
		opts := defaultOptions()
		opts.MaxCASAttempts = readers + 1
		s := NewService(claims, store, opts)
		ctx := context.Background()
		n := mustCreate(t, s, "admin", CreateInput{Message: "m", RecipientRoles: []string{"member"}})

		var wg sync.WaitGroup
		errs := make(chan error, readers)
		for i := range readers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.MarkRead(ctx, fmt.Sprintf("user-%d", i), n.ID); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("MarkRead()でエラーが発生: %v", err)
		}

		got, err := store.Get(ctx, n.ID)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		readBy := got.Target.(Broadcast).ReadBy
		if len(readBy) != readers {
			t.Errorf("ReadBy = %q, want %d readers", readBy, readers)
		}
		for i := range readers {
			if id := fmt.Sprintf("%d", 100+i); !slices.Contains(readBy, id) {
				t.Errorf("ReadByに %s が含まれていない: %q", id, readBy)
			}
		}
	})
}

// racingStore は最初のUpdateReadStateの直前に、別の利用者による既読化を割り込ませるStore。
type racingStore struct {
	Store
	once     sync.Once
	intruder string
	updates  atomic.Int32
}

func (s *racingStore) UpdateReadState(ctx context.Context, id string, version int64, next Target) (Notification, error) {
	s.updates.Add(1)
	s.once.Do(func() {
		current, err := s.Store.Get(ctx, id)
		if err != nil {
			return
		}
		b := current.Target.(Broadcast)
		b.ReadBy = append(slices.Clone(b.ReadBy), s.intruder)
		_, _ = s.Store.UpdateReadState(ctx, id, current.Version, b)
	})
	return s.Store.UpdateReadState(ctx, id, version, next)
}

// conflictStore はUpdateReadStateが常に競合するStore。
type conflictStore struct {
	Store
	updates atomic.Int32
}

func (s *conflictStore) UpdateReadState(context.Context, string, int64, Target) (Notification, error) {
	s.updates.Add(1)
	return Notification{}, ErrConflict
}

// failingStore はすべての呼び出しが失敗するStore。
type failingStore struct {
	err error
}

func (s failingStore) Create(context.Context, Draft) (Notification, error) { return Notification{}, s.err }
func (s failingStore) Get(context.Context, string) (Notification, error)   { return Notification{}, s.err }
func (s failingStore) Find(context.Context, Filter) ([]Notification, error) {
	return nil, s.err
}
func (s failingStore) UpdateReadState(context.Context, string, int64, Target) (Notification, error) {
	return Notification{}, s.err
}

func TestService_CompareAndSwap(t *testing.T) {
	t.Parallel()

	t.Run("競合した場合は読み直して再試行し両方の既読が残ること", func(t *testing.T) {
		t.Parallel()

		inner := newTestSQLiteStore(t)
		store := &racingStore{Store: inner, intruder: "99"}
		s := NewService(testPrincipals, store, defaultOptions())
		ctx := context.Background()
		n := mustCreate(t, s, "admin", CreateInput{Message: "m", RecipientRoles: []string{"member"}})

		updated, err := s.MarkRead(ctx, "alice", n.ID)
		if err != nil {
			t.Fatalf("MarkRead()でエラーが発生: %v", err)
		}
		if got := updated.Target.(Broadcast).ReadBy; !slices.Equal(got, []string{"99", "3"}) {
			t.Errorf("ReadBy = %q, want [99 3]", got)
		}
		if updated.Version != 3 {
			t.Errorf("Version = %d, want 3", updated.Version)
		}
		if got := store.updates.Load(); got != 2 {
			t.Errorf("UpdateReadState呼び出し回数 = %d, want 2", got)
		}
	})

	t.Run("試行回数を超えて競合するとErrInternalになること", func(t *testing.T) {
		t.Parallel()

		inner := newTestSQLiteStore(t)
		store := &conflictStore{Store: inner}
		opts := defaultOptions()
		opts.MaxCASAttempts = 3
		s := NewService(testPrincipals, store, opts)
		n := mustCreate(t, s, "admin", CreateInput{Message: "m", RecipientRoles: []string{"member"}})

		_, err := s.MarkRead(context.Background(), "alice", n.ID)
		if !errors.Is(err, ErrInternal) {
			t.Fatalf("MarkRead() error = %v, want ErrInternal", err)
		}
		if got := store.updates.Load(); got != 3 {
			t.Errorf("UpdateReadState呼び出し回数 = %d, want 3", got)
		}
	})
}

func TestService_StoreFailure(t *testing.T) {
	t.Parallel()

	s := NewService(testPrincipals, failingStore{err: errors.New("disk I/O error")}, defaultOptions())
	ctx := context.Background()

	if _, err := s.Create(ctx, "admin", CreateInput{Message: "m", RecipientUsername: "alice"}); !errors.Is(err, ErrInternal) {
		t.Errorf("Create() error = %v, want ErrInternal", err)
	}
	if _, err := s.ListForPrincipal(ctx, "alice"); !errors.Is(err, ErrInternal) {
		t.Errorf("ListForPrincipal() error = %v, want ErrInternal", err)
	}
	if _, err := s.Get(ctx, "alice", "id"); !errors.Is(err, ErrInternal) {
		t.Errorf("Get() error = %v, want ErrInternal", err)
	}
	if _, err := s.MarkRead(ctx, "alice", "id"); !errors.Is(err, ErrInternal) {
		t.Errorf("MarkRead() error = %v, want ErrInternal", err)
	}
}

func TestService_Options(t *testing.T) {
	t.Parallel()

	t.Run("EmptyListNotFoundが無効なら空の一覧を返すこと", func(t *testing.T) {
		t.Parallel()

		opts := defaultOptions()
		opts.EmptyListNotFound = false
		s, _ := newTestService(t, opts)

		list, err := s.ListForPrincipal(context.Background(), "alice")
		if err != nil {
			t.Fatalf("ListForPrincipal()でエラーが発生: %v", err)
		}
		if list == nil || len(list) != 0 {
			t.Errorf("ListForPrincipal() = %#v, want empty slice", list)
		}
		unread, err := s.ListUnread(context.Background(), "alice")
		if err != nil || len(unread) != 0 {
			t.Errorf("ListUnread() = %v, %v, want empty", unread, err)
		}
	})

	t.Run("EnforceGetVisibilityの有無でID指定の取得結果が変わること", func(t *testing.T) {
		t.Parallel()

		enforced, store := newTestService(t, defaultOptions())
		opts := defaultOptions()
		opts.EnforceGetVisibility = false
		relaxed := NewService(testPrincipals, store, opts)
		ctx := context.Background()
		n := mustCreate(t, enforced, "admin", CreateInput{Message: "m", RecipientUsername: "alice"})

		if _, err := enforced.Get(ctx, "bob", n.ID); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Get(enforced) error = %v, want ErrUnauthorized", err)
		}
		if got, err := relaxed.Get(ctx, "bob", n.ID); err != nil || got.ID != n.ID {
			t.Errorf("Get(relaxed) = %+v, %v", got, err)
		}
		if got, err := enforced.Get(ctx, "alice", n.ID); err != nil || got.ID != n.ID {
			t.Errorf("Get(alice) = %+v, %v", got, err)
		}
		if _, err := relaxed.Get(ctx, "bob", "no-such-id"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("テナント限定では他テナントの通知が見えず既読にもできないこと", func(t *testing.T) {
		t.Parallel()

		opts := defaultOptions()
		opts.Scope = Scope{TenantScoped: true}
		s, _ := newTestService(t, opts)
		ctx := context.Background()
		n := mustCreate(t, s, "admin", CreateInput{Message: "m", RecipientRoles: []string{"ops"}})

		// bobはopsロールを持つがテナントが異なる
		if _, err := s.ListForPrincipal(ctx, "bob"); !errors.Is(err, ErrNotFound) {
			t.Errorf("ListForPrincipal(bob) error = %v, want ErrNotFound", err)
		}
		if _, err := s.MarkRead(ctx, "bob", n.ID); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("MarkRead(bob) error = %v, want ErrUnauthorized", err)
		}
		if list, err := s.ListForPrincipal(ctx, "ops"); err != nil || len(list) != 1 {
			t.Errorf("ListForPrincipal(ops) = %v, %v", list, err)
		}
	})
}

func TestService_Unread(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, defaultOptions())
	ctx := context.Background()
	n1 := mustCreate(t, s, "admin", CreateInput{Message: "1", RecipientRoles: []string{"member"}})
	n2 := mustCreate(t, s, "admin", CreateInput{Message: "2", RecipientUsername: "alice"})
	mustCreate(t, s, "admin", CreateInput{Message: "3", RecipientUsername: "bob"})

	unread, err := s.ListUnread(ctx, "alice")
	if err != nil {
		t.Fatalf("ListUnread()でエラーが発生: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("ListUnread() = %d件, want 2", len(unread))
	}

	if _, err := s.MarkRead(ctx, "alice", n1.ID); err != nil {
		t.Fatalf("MarkRead()でエラーが発生: %v", err)
	}
	unread, err = s.ListUnread(ctx, "alice")
	if err != nil {
		t.Fatalf("ListUnread()でエラーが発生: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != n2.ID {
		t.Errorf("ListUnread() = %+v, want [%s]", unread, n2.ID)
	}

	count, err := s.MarkAllRead(ctx, "alice")
	if err != nil {
		t.Fatalf("MarkAllRead()でエラーが発生: %v", err)
	}
	if count != 1 {
		t.Errorf("MarkAllRead() = %d, want 1", count)
	}
	if _, err := s.ListUnread(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListUnread() error = %v, want ErrNotFound", err)
	}

	count, err = s.MarkAllRead(ctx, "alice")
	if err != nil || count != 0 {
		t.Errorf("2回目のMarkAllRead() = %d, %v, want 0", count, err)
	}
}

func TestService_Events(t *testing.T) {
	t.Parallel()

	t.Run("作成と状態が変わった既読化でイベントが送信されること", func(t *testing.T) {
		t.Parallel()

		pub := &recordingPublisher{}
		opts := defaultOptions()
		opts.Publisher = pub
		s, _ := newTestService(t, opts)
		ctx := context.Background()
		n := mustCreate(t, s, "admin", CreateInput{Message: "m", RecipientRoles: []string{"member"}})

		if _, err := s.MarkRead(ctx, "alice", n.ID); err != nil {
			t.Fatalf("MarkRead()でエラーが発生: %v", err)
		}
		if _, err := s.MarkRead(ctx, "alice", n.ID); err != nil {
			t.Fatalf("2回目のMarkRead()でエラーが発生: %v", err)
		}

		want := []event.Type{event.TypeNotificationCreated, event.TypeNotificationRead}
		if got := pub.types(); !slices.Equal(got, want) {
			t.Fatalf("イベント = %v, want %v", got, want)
		}

		created, err := event.DecodeData[event.NotificationCreatedData](pub.events[0])
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if created.Mode != "broadcast" || created.CreatedBy != "5" || !slices.Equal(created.RecipientRoles, []string{"member"}) {
			t.Errorf("NotificationCreatedData = %+v", created)
		}
		if pub.events[0].AggregateID != "notification-"+n.ID {
			t.Errorf("AggregateID = %s", pub.events[0].AggregateID)
		}

		read, err := event.DecodeData[event.NotificationReadData](pub.events[1])
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if read.ReaderID != "3" {
			t.Errorf("ReaderID = %s, want 3", read.ReaderID)
		}
		if pub.events[1].Version != 2 {
			t.Errorf("Version = %d, want 2", pub.events[1].Version)
		}
	})

	t.Run("イベント送信の失敗は処理結果に影響しないこと", func(t *testing.T) {
		t.Parallel()

		pub := &recordingPublisher{err: errors.New("connection refused")}
		opts := defaultOptions()
		opts.Publisher = pub
		s, _ := newTestService(t, opts)

		n, err := s.Create(context.Background(), "admin", CreateInput{Message: "m", RecipientUsername: "alice"})
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		if _, err := s.MarkRead(context.Background(), "alice", n.ID); err != nil {
			t.Fatalf("MarkRead()でエラーが発生: %v", err)
		}
		if got := len(pub.types()); got != 2 {
			t.Errorf("送信試行回数 = %d, want 2", got)
		}
	})
}
