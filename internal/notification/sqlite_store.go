package notification

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	notificationdb "github.com/nao1215/notifyhub/internal/notification/db"
	"github.com/nao1215/notifyhub/pkg/migration"
	"github.com/nao1215/notifyhub/pkg/pgarray"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore はSQLiteに通知を保存するStore。
// ロールと既読者の集合はブレース区切りの配列リテラルとしてTEXT列に保存する。
type SQLiteStore struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *notificationdb.Queries
	// newID は通知IDを採番する。
	newID func() string
	// now は作成日時に使う現在時刻を返す。
	now func() time.Time
}

// OpenSQLite はSQLiteデータベースファイルを開き、マイグレーションを適用したSQLiteStoreを返す。
func OpenSQLite(ctx context.Context, path string, logger logrus.FieldLogger) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	s, err := NewSQLiteStore(ctx, sqlDB, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore は開いたデータベース接続にマイグレーションを適用してSQLiteStoreを生成する。
func NewSQLiteStore(ctx context.Context, sqlDB *sql.DB, logger logrus.FieldLogger) (*SQLiteStore, error) {
	if _, err := migration.Run(ctx, sqlDB, migrationsFS, "migrations", logger); err != nil {
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	return &SQLiteStore{
		db:      sqlDB,
		queries: notificationdb.New(sqlDB),
		newID:   uuid.NewString,
		now:     time.Now,
	}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create は通知を作成する。
func (s *SQLiteStore) Create(ctx context.Context, d Draft) (Notification, error) {
	params := notificationdb.CreateNotificationParams{
		ID:             s.newID(),
		Tenant:         d.Tenant,
		Message:        d.Message,
		RecipientRoles: pgarray.Encode(nil),
		Iat:            EpochMillis(s.now()).UnixMilli(),
	}
	switch t := normalizeTarget(d.Target).(type) {
	case Broadcast:
		if len(t.Roles) == 0 {
			return Notification{}, fmt.Errorf("%w: 宛先ロールが空です", ErrInvalidArgument)
		}
		params.Mode = string(ModeBroadcast)
		params.RecipientRoles = pgarray.Encode(t.Roles)
	case Direct:
		if t.Username == "" {
			return Notification{}, fmt.Errorf("%w: 宛先ユーザー名が空です", ErrInvalidArgument)
		}
		params.Mode = string(ModeDirect)
		params.RecipientUsername = t.Username
	default:
		return Notification{}, fmt.Errorf("%w: 宛先が指定されていません", ErrInvalidArgument)
	}

	row, err := s.queries.CreateNotification(ctx, params)
	if err != nil {
		return Notification{}, fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return fromRow(row)
}

// Get はIDで通知を取得する。
func (s *SQLiteStore) Get(ctx context.Context, id string) (Notification, error) {
	row, err := s.queries.GetNotificationByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Notification{}, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return fromRow(row)
}

// Find は条件に合う通知を作成日時の新しい順に返す。
func (s *SQLiteStore) Find(ctx context.Context, f Filter) ([]Notification, error) {
	var (
		rows []notificationdb.Notification
		err  error
	)
	if f.Tenant != "" {
		rows, err = s.queries.ListNotificationsByTenant(ctx, f.Tenant)
	} else {
		rows, err = s.queries.ListNotifications(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}

	notifications := make([]Notification, 0, len(rows))
	for _, row := range rows {
		n, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// UpdateReadState は版数と宛先方式が一致する行だけを更新する。
func (s *SQLiteStore) UpdateReadState(ctx context.Context, id string, version int64, next Target) (Notification, error) {
	var (
		row notificationdb.Notification
		err error
	)
	switch t := normalizeTarget(next).(type) {
	case Broadcast:
		row, err = s.queries.UpdateBroadcastReadState(ctx, notificationdb.UpdateBroadcastReadStateParams{
			ReadBy:  pgarray.Encode(t.ReadBy),
			ID:      id,
			Version: version,
		})
	case Direct:
		readAt := sql.NullInt64{}
		if !t.ReadAt.IsZero() {
			readAt = sql.NullInt64{Int64: t.ReadAt.UnixMilli(), Valid: true}
		}
		row, err = s.queries.UpdateDirectReadState(ctx, notificationdb.UpdateDirectReadStateParams{
			ReadAt:  readAt,
			ID:      id,
			Version: version,
		})
	default:
		return Notification{}, fmt.Errorf("%w: 未知の宛先方式 %T", ErrInternal, next)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, s.classifyMiss(ctx, id, next)
	}
	if err != nil {
		return Notification{}, fmt.Errorf("既読状態の更新に失敗: %w", err)
	}
	return fromRow(row)
}

// classifyMiss は更新対象の行がなかった理由を、存在しない・方式違い・版数の競合に分類する。
func (s *SQLiteStore) classifyMiss(ctx context.Context, id string, next Target) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Target.Mode() != next.Mode() {
		return fmt.Errorf("%w: 通知 %s の宛先方式は %s です", ErrInternal, id, current.Target.Mode())
	}
	return fmt.Errorf("%w: 通知 %s", ErrConflict, id)
}

// fromRow はDB行を通知に変換する。
func fromRow(row notificationdb.Notification) (Notification, error) {
	n := Notification{
		ID:        row.ID,
		CreatedAt: time.UnixMilli(row.Iat).UTC(),
		Tenant:    row.Tenant,
		Message:   row.Message,
		Version:   row.Version,
	}
	switch Mode(row.Mode) {
	case ModeBroadcast:
		roles, err := pgarray.Decode(row.RecipientRoles)
		if err != nil {
			return Notification{}, fmt.Errorf("%w: 通知 %s の宛先ロールの復元に失敗: %w", ErrInternal, row.ID, err)
		}
		readBy, err := pgarray.Decode(row.ReadBy)
		if err != nil {
			return Notification{}, fmt.Errorf("%w: 通知 %s の既読者の復元に失敗: %w", ErrInternal, row.ID, err)
		}
		n.Target = Broadcast{Roles: roles, ReadBy: readBy}
	case ModeDirect:
		d := Direct{Username: row.RecipientUsername}
		if row.ReadAt.Valid {
			d.ReadAt = time.UnixMilli(row.ReadAt.Int64).UTC()
		}
		n.Target = d
	default:
		return Notification{}, fmt.Errorf("%w: 通知 %s の宛先方式 %q が不正です", ErrInternal, row.ID, row.Mode)
	}
	return n, nil
}
