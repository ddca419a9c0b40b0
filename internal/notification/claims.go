package notification

import (
	"context"
	"fmt"

	"github.com/nao1215/notifyhub/pkg/middleware"
)

// JWTClaimsReader はHS256署名のJWTを検証するClaimsReader。
// 共有シークレットは起動時に一度だけ注入する。
type JWTClaimsReader struct {
	secret string
}

// NewJWTClaimsReader は共有シークレットを使うJWTClaimsReaderを生成する。
func NewJWTClaimsReader(secret string) *JWTClaimsReader {
	return &JWTClaimsReader{secret: secret}
}

// Verify はトークンを検証し、クレームをそのまま利用者として返す。
func (r *JWTClaimsReader) Verify(_ context.Context, credential string) (Principal, error) {
	claims, err := middleware.ParseJWT(r.secret, credential)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.UserID == "" && claims.Username == "" {
		return Principal{}, fmt.Errorf("%w: トークンに利用者情報が含まれていません", ErrUnauthorized)
	}
	return Principal{
		ID:       string(claims.UserID),
		Username: claims.Username,
		Tenant:   string(claims.Tenant),
		Roles:    claims.Roles,
	}, nil
}
