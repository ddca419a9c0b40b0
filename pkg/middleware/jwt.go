package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMissing はベアラートークンが指定されていないことを表す。
	ErrTokenMissing = errors.New("トークンが指定されていません")
	// ErrTokenInvalid はトークンの署名・形式・有効期限のいずれかが不正であることを表す。
	ErrTokenInvalid = errors.New("トークンが無効です")
)

// tokenIssuer は開発用に発行するトークンのissuer。
const tokenIssuer = "notifyhub"

// FlexibleID は数値と文字列のどちらのJSON表現も受け付ける識別子。
// 発行元によってユーザーIDやテナントが数値で埋め込まれることがあるため、文字列に正規化する。
type FlexibleID string

// UnmarshalJSON は文字列・数値・nullをFlexibleIDとして読み込む。
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("識別子は文字列または数値である必要があります: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// 通知の宛先判定に必要な利用者ID・ユーザー名・テナント・ロールを保持する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済み利用者の一意識別子。
	UserID FlexibleID `json:"id"`
	// Username は利用者のユーザー名。
	Username string `json:"username"`
	// Tenant は利用者が所属するテナント。
	Tenant FlexibleID `json:"tenant"`
	// Roles は利用者が保持するロール名の一覧。
	Roles []string `json:"roles"`
}

// GenerateJWT は利用者情報から24時間有効なHS256トークンを生成する。
// 資格情報の発行はこのサービスの責務ではないため、テストと開発用途に限って使う。
func GenerateJWT(secret, userID, username, tenant string, roles []string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID:   FlexibleID(userID),
		Username: username,
		Tenant:   FlexibleID(tenant),
		Roles:    roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はトークンの署名と有効期限を検証し、クレームを返す。
// HMAC以外の署名アルゴリズムは受け付けない。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// BearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
// ヘッダーがない場合や形式が不正な場合は空文字列を返す。
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
