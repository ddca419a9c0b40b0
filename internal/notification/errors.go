package notification

import "errors"

var (
	// ErrUnauthorized は資格情報が欠落・不正であるか、利用者が対象の通知の受信者でないことを表す。
	ErrUnauthorized = errors.New("認証または権限がありません")
	// ErrNotFound は通知が存在しないか、可視な通知が1件もないことを表す。
	ErrNotFound = errors.New("通知が見つかりません")
	// ErrInvalidArgument は作成リクエストの内容が不正であることを表す。
	ErrInvalidArgument = errors.New("リクエストが不正です")
	// ErrInternal はストアの予期しない失敗を表す。
	ErrInternal = errors.New("内部エラーが発生しました")
	// ErrConflict は既読状態の更新時に版数が一致しなかったことを表す。ストアが返す。
	ErrConflict = errors.New("通知が同時に更新されました")
)
