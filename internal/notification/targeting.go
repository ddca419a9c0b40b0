package notification

// Scope は可視性判定の範囲を表す。
type Scope struct {
	// TenantScoped が有効な場合、利用者と同じテナントの通知だけを可視とする。
	TenantScoped bool
}

// matcher は1人の利用者に対する可視性判定。ロール集合を一度だけ構築する。
type matcher struct {
	principal Principal
	roles     map[string]struct{}
	scope     Scope
}

func newMatcher(p Principal, scope Scope) matcher {
	roles := make(map[string]struct{}, len(p.Roles))
	for _, r := range p.Roles {
		roles[r] = struct{}{}
	}
	return matcher{principal: p, roles: roles, scope: scope}
}

func (m matcher) match(n Notification) bool {
	if m.scope.TenantScoped && n.Tenant != m.principal.Tenant {
		return false
	}
	switch t := normalizeTarget(n.Target).(type) {
	case Broadcast:
		for _, r := range t.Roles {
			if _, ok := m.roles[r]; ok {
				return true
			}
		}
		return false
	case Direct:
		return m.principal.Username != "" && t.Username == m.principal.Username
	default:
		return false
	}
}

// VisibleTo は通知の中から利用者に可視なものを、入力の順序を保って返す。
// ブロードキャスト通知はロールが1つでも重なれば可視、ダイレクト通知はユーザー名が完全一致すれば可視。
// 該当がない場合は空のスライスを返す。空を失敗とみなすかは呼び出し側が決める。
func VisibleTo(p Principal, notifications []Notification, scope Scope) []Notification {
	m := newMatcher(p, scope)
	visible := make([]Notification, 0, len(notifications))
	for _, n := range notifications {
		if m.match(n) {
			visible = append(visible, n)
		}
	}
	return visible
}

// CanSee は利用者が通知の受信者であるかを判定する。
func CanSee(p Principal, n Notification, scope Scope) bool {
	return newMatcher(p, scope).match(n)
}
