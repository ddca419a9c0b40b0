// Package event は通知サービスがEvent Storeへ送信するイベントの型を定義する。
//
// 通知の作成と既読化をイベントとして記録する。イベントの送信は通知処理の成否に影響しない。
package event
