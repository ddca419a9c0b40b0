// Package notification は通知サービスの内部実装を提供する。
//
// 通知はロール宛てのブロードキャストか、特定ユーザー宛てのダイレクトのいずれかで作成される。
// 認証済みの利用者に可視な通知の判定（ターゲティング）と、受信者ごとの既読状態の
// 単調な更新（既読レシート）を担い、HTTPハンドラとストア実装はその周辺に置く。
package notification
