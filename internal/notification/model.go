package notification

import (
	"slices"
	"time"
)

// Mode は通知の宛先指定方式を表す。
type Mode string

const (
	// ModeBroadcast はロール宛てのブロードキャスト通知を表す。
	ModeBroadcast Mode = "broadcast"
	// ModeDirect は特定ユーザー宛てのダイレクト通知を表す。
	ModeDirect Mode = "direct"
)

// Target は通知の宛先と既読状態を表す。BroadcastかDirectのいずれか。
// 宛先方式ごとに既読状態の形が異なるため、方式と既読状態を一体で保持する。
type Target interface {
	// Mode は宛先指定方式を返す。
	Mode() Mode
	target()
}

// Broadcast はロール宛ての宛先と、既読にした利用者IDの集合。
type Broadcast struct {
	// Roles は宛先ロール名の集合。
	Roles []string
	// ReadBy は既読にした利用者IDの集合。追加順を保ち、重複しない。
	ReadBy []string
}

// Mode はModeBroadcastを返す。
func (Broadcast) Mode() Mode { return ModeBroadcast }
func (Broadcast) target()    {}

// Direct は特定ユーザー宛ての宛先と、既読にした日時。
type Direct struct {
	// Username は宛先ユーザー名。大文字小文字を区別する。
	Username string
	// ReadAt は既読にした日時。ゼロ値は未読を表す。
	ReadAt time.Time
}

// Mode はModeDirectを返す。
func (Direct) Mode() Mode { return ModeDirect }
func (Direct) target()    {}

// Notification は永続化された通知。
type Notification struct {
	// ID は作成時にストアが採番する一意識別子。
	ID string
	// CreatedAt は作成日時（ミリ秒精度）。
	CreatedAt time.Time
	// Tenant は通知が属するテナント。
	Tenant string
	// Message は通知の本文。
	Message string
	// Target は宛先と既読状態。
	Target Target
	// Version は既読状態の楽観的排他制御に使う版数。作成時は1。
	Version int64
}

// Draft はストアに作成を依頼する通知の内容。IDと作成日時はストアが決める。
type Draft struct {
	// Tenant は通知が属するテナント。
	Tenant string
	// Message は通知の本文。
	Message string
	// Target は宛先。既読状態は空でなければならない。
	Target Target
}

// Principal はベアラートークンから復元した利用者。リクエストごとに作り直す。
type Principal struct {
	ID       string
	Username string
	Tenant   string
	Roles    []string
}

// Filter はストアからの一覧取得条件。
type Filter struct {
	// Tenant が空でなければ、そのテナントの通知だけを返す。
	Tenant string
}

// EpochMillis は時刻を通知で扱うミリ秒精度に丸める。
func EpochMillis(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// normalizeTarget はポインタで渡されたTargetを値に揃える。nilポインタはnilを返す。
func normalizeTarget(t Target) Target {
	switch v := t.(type) {
	case *Broadcast:
		if v == nil {
			return nil
		}
		return *v
	case *Direct:
		if v == nil {
			return nil
		}
		return *v
	default:
		return t
	}
}

// cloneTarget はスライスを共有しないTargetの複製を返す。
func cloneTarget(t Target) Target {
	if b, ok := normalizeTarget(t).(Broadcast); ok {
		return Broadcast{Roles: slices.Clone(b.Roles), ReadBy: slices.Clone(b.ReadBy)}
	}
	return normalizeTarget(t)
}
