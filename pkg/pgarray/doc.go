// Package pgarray は文字列集合をブレース区切りの配列リテラル（{a,b,"c,d"}）で
// エンコード・デコードするコーデックを提供する。
//
// リレーショナルストアの配列カラム互換のテキスト表現を扱う。ストアの境界でのみ使用し、
// 通知のコアロジックはこの表現を直接組み立てたり解析したりしない。
package pgarray
