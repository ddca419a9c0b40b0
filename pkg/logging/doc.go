// Package logging は全サービス共通の構造化ロガーを提供する。
//
// logrusを使用し、出力形式（JSON/テキスト）とログレベルを設定から決定する。
// ファイル出力が指定された場合はlumberjackでローテーションする。
package logging
