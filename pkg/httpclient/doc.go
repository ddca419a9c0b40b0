// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// 通知サービスがEvent Storeへイベントを送信する際に使用する。
package httpclient
