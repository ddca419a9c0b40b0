// Package cassandrastore はCassandraに通知を保存するストアを提供する。
// 作成と既読状態の更新は軽量トランザクション（IF句）で行う。
package cassandrastore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nao1215/notifyhub/internal/notification"
)

const createTable = `CREATE TABLE IF NOT EXISTS notifications (
	id text PRIMARY KEY,
	iat bigint,
	tenant text,
	msg text,
	mode text,
	destinataries list<text>,
	username text,
	profiles_that_read list<text>,
	read_at bigint,
	version bigint
)`

const selectColumns = `SELECT id, iat, tenant, msg, mode, destinataries, username, profiles_that_read, read_at, version FROM notifications`

// Store はCassandraのテーブルを使うnotification.Store。
type Store struct {
	session *gocql.Session
	newID   func() string
	now     func() time.Time
}

// Config はCassandraへの接続設定。
type Config struct {
	// Hosts は接続先ノードの一覧。
	Hosts []string
	// Keyspace は通知テーブルを置くキースペース。存在しない場合は作成する。
	Keyspace string
	// Consistency は読み書きの整合性レベル。ゼロ値はQuorum。
	Consistency gocql.Consistency
}

// Open はキースペースとテーブルを用意し、Storeを返す。
func Open(ctx context.Context, cfg Config, logger logrus.FieldLogger) (*Store, error) {
	if err := ensureKeyspace(ctx, cfg); err != nil {
		return nil, err
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = cfg.Consistency
	if cluster.Consistency == 0 {
		cluster.Consistency = gocql.Quorum
	}
	cluster.SerialConsistency = gocql.Serial
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("キースペース %s への接続に失敗: %w", cfg.Keyspace, err)
	}

	if err := session.Query(createTable).WithContext(ctx).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("テーブルの作成に失敗: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"hosts":    cfg.Hosts,
		"keyspace": cfg.Keyspace,
	}).Info("Cassandraに接続しました")
	return New(session), nil
}

// ensureKeyspace はsystemキースペース経由で通知用のキースペースを作成する。
func ensureKeyspace(ctx context.Context, cfg Config) error {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = "system"
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("Cassandraへの接続に失敗: %w", err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, cfg.Keyspace)
	if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("キースペース %s の作成に失敗: %w", cfg.Keyspace, err)
	}
	return nil
}

// New は接続済みのセッションからStoreを生成する。
func New(session *gocql.Session) *Store {
	return &Store{
		session: session,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Close はセッションを閉じる。
func (s *Store) Close() {
	s.session.Close()
}

// Ping はCassandraへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Exec()
}

// Create は通知を作成する。IDの衝突はIF NOT EXISTSで検出する。
func (s *Store) Create(ctx context.Context, d notification.Draft) (notification.Notification, error) {
	r, err := newRow(s.newID(), notification.EpochMillis(s.now()), d)
	if err != nil {
		return notification.Notification{}, err
	}

	applied, err := s.session.Query(
		`INSERT INTO notifications (id, iat, tenant, msg, mode, destinataries, username, profiles_that_read, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		r.ID, r.Iat, r.Tenant, r.Msg, r.Mode, r.Destinataries, r.Username, r.ProfilesThatRead, r.Version,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return notification.Notification{}, fmt.Errorf("通知の保存に失敗: %w", err)
	}
	if !applied {
		return notification.Notification{}, fmt.Errorf("%w: 通知ID %s が重複しています", notification.ErrInternal, r.ID)
	}
	return r.toNotification()
}

// Get はIDで通知を取得する。
func (s *Store) Get(ctx context.Context, id string) (notification.Notification, error) {
	var r row
	err := s.session.Query(selectColumns+` WHERE id = ?`, id).WithContext(ctx).Scan(r.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return notification.Notification{}, fmt.Errorf("%w: %s", notification.ErrNotFound, id)
	}
	if err != nil {
		return notification.Notification{}, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return r.toNotification()
}

// Find は条件に合う通知を作成日時の新しい順に返す。
// パーティションをまたぐ並び替えはできないため、取得後に並び替える。
func (s *Store) Find(ctx context.Context, f notification.Filter) ([]notification.Notification, error) {
	q := s.session.Query(selectColumns)
	if f.Tenant != "" {
		q = s.session.Query(selectColumns+` WHERE tenant = ? ALLOW FILTERING`, f.Tenant)
	}
	iter := q.WithContext(ctx).Iter()

	var rows []row
	for {
		var r row
		if !iter.Scan(r.dest()...) {
			break
		}
		rows = append(rows, r)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}

	slices.SortFunc(rows, func(a, b row) int {
		if c := cmp.Compare(b.Iat, a.Iat); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	notifications := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toNotification()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// UpdateReadState は版数と宛先方式が一致する場合だけ既読状態を更新する。
func (s *Store) UpdateReadState(ctx context.Context, id string, version int64, next notification.Target) (notification.Notification, error) {
	var q *gocql.Query
	switch t := next.(type) {
	case notification.Broadcast:
		readBy := t.ReadBy
		if readBy == nil {
			readBy = []string{}
		}
		q = s.session.Query(
			`UPDATE notifications SET profiles_that_read = ?, version = ? WHERE id = ? IF version = ? AND mode = ?`,
			readBy, version+1, id, version, string(notification.ModeBroadcast),
		)
	case notification.Direct:
		var readAt *int64
		if !t.ReadAt.IsZero() {
			ms := t.ReadAt.UnixMilli()
			readAt = &ms
		}
		q = s.session.Query(
			`UPDATE notifications SET read_at = ?, version = ? WHERE id = ? IF version = ? AND mode = ?`,
			readAt, version+1, id, version, string(notification.ModeDirect),
		)
	default:
		return notification.Notification{}, fmt.Errorf("%w: 未知の宛先方式 %T", notification.ErrInternal, next)
	}

	applied, err := q.WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return notification.Notification{}, fmt.Errorf("既読状態の更新に失敗: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return notification.Notification{}, err
	}
	if applied {
		return current, nil
	}
	if current.Target.Mode() != next.Mode() {
		return notification.Notification{}, fmt.Errorf("%w: 通知 %s の宛先方式は %s です", notification.ErrInternal, id, current.Target.Mode())
	}
	return notification.Notification{}, fmt.Errorf("%w: 通知 %s", notification.ErrConflict, id)
}

// row はnotificationsテーブルの1行。
type row struct {
	ID               string
	Iat              int64
	Tenant           string
	Msg              string
	Mode             string
	Destinataries    []string
	Username         string
	ProfilesThatRead []string
	ReadAt           int64
	Version          int64
}

// dest はselectColumnsの順序に合わせたScan先を返す。
func (r *row) dest() []interface{} {
	return []interface{}{
		&r.ID, &r.Iat, &r.Tenant, &r.Msg, &r.Mode,
		&r.Destinataries, &r.Username, &r.ProfilesThatRead, &r.ReadAt, &r.Version,
	}
}

// newRow は作成内容から行を組み立てる。
func newRow(id string, createdAt time.Time, d notification.Draft) (row, error) {
	r := row{
		ID:               id,
		Iat:              createdAt.UnixMilli(),
		Tenant:           d.Tenant,
		Msg:              d.Message,
		ProfilesThatRead: []string{},
		Version:          1,
	}
	switch t := d.Target.(type) {
	case notification.Broadcast:
		if len(t.Roles) == 0 {
			return row{}, fmt.Errorf("%w: 宛先ロールが空です", notification.ErrInvalidArgument)
		}
		r.Mode = string(notification.ModeBroadcast)
		r.Destinataries = t.Roles
	case notification.Direct:
		if t.Username == "" {
			return row{}, fmt.Errorf("%w: 宛先ユーザー名が空です", notification.ErrInvalidArgument)
		}
		r.Mode = string(notification.ModeDirect)
		r.Username = t.Username
	default:
		return row{}, fmt.Errorf("%w: 宛先が指定されていません", notification.ErrInvalidArgument)
	}
	return r, nil
}

// toNotification は行を通知に変換する。read_atの0は未読を表す。
func (r row) toNotification() (notification.Notification, error) {
	n := notification.Notification{
		ID:        r.ID,
		CreatedAt: time.UnixMilli(r.Iat).UTC(),
		Tenant:    r.Tenant,
		Message:   r.Msg,
		Version:   r.Version,
	}
	switch notification.Mode(r.Mode) {
	case notification.ModeBroadcast:
		n.Target = notification.Broadcast{Roles: r.Destinataries, ReadBy: r.ProfilesThatRead}
	case notification.ModeDirect:
		d := notification.Direct{Username: r.Username}
		if r.ReadAt != 0 {
			d.ReadAt = time.UnixMilli(r.ReadAt).UTC()
		}
		n.Target = d
	default:
		return notification.Notification{}, fmt.Errorf("%w: 通知 %s の宛先方式 %q が不正です", notification.ErrInternal, r.ID, r.Mode)
	}
	return n, nil
}
