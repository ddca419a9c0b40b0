// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWTクレームの検証、ベアラートークンの取り出し、構造化リクエストログ、
// パニックリカバリ、CORS設定など、HTTP境界で共通して使用する処理を含む。
package middleware
