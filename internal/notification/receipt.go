package notification

import (
	"fmt"
	"slices"
	"time"
)

// Reconcile は利用者が通知を既読にした後の宛先・既読状態を計算する。
//
// ブロードキャスト通知では既読集合に利用者IDを加え、ダイレクト通知では未読の場合に限り
// 既読日時をnowに設定する。既に既読の場合は入力と同じ状態を返し、changedはfalseになる。
// 利用者が通知の受信者でない場合はErrUnauthorizedを返す。入力の通知は変更しない。
func Reconcile(n Notification, p Principal, now time.Time, scope Scope) (next Target, changed bool, err error) {
	if !CanSee(p, n, scope) {
		return nil, false, fmt.Errorf("%w: 通知 %s の受信者ではありません", ErrUnauthorized, n.ID)
	}

	switch t := cloneTarget(n.Target).(type) {
	case Broadcast:
		if p.ID == "" {
			return nil, false, fmt.Errorf("%w: 利用者IDがありません", ErrUnauthorized)
		}
		if slices.Contains(t.ReadBy, p.ID) {
			return t, false, nil
		}
		t.ReadBy = append(t.ReadBy, p.ID)
		return t, true, nil
	case Direct:
		if !t.ReadAt.IsZero() {
			return t, false, nil
		}
		t.ReadAt = EpochMillis(now)
		return t, true, nil
	default:
		return nil, false, fmt.Errorf("%w: 未知の宛先方式 %T", ErrInternal, n.Target)
	}
}

// HasRead は利用者が既に通知を既読にしているかを返す。
func HasRead(n Notification, p Principal) bool {
	switch t := normalizeTarget(n.Target).(type) {
	case Broadcast:
		return p.ID != "" && slices.Contains(t.ReadBy, p.ID)
	case Direct:
		return !t.ReadAt.IsZero()
	default:
		return false
	}
}
