// Package token はアクセストークン（HS256署名のJWT）の発行・検証・失効を提供する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken は署名不正・期限切れ・形式不正などで検証に失敗したトークンを表す。
var ErrInvalidToken = errors.New("invalid token")

// Subject はトークンに埋め込むユーザー情報。
type Subject struct {
	UserID string
	Email  string
	Role   string
}

// Claims はアクセストークンのクレーム。subにユーザーID、jtiに失効管理用のIDを持つ。
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Issued は発行済みトークンと有効期限。
type Issued struct {
	Token     string
	ExpiresAt time.Time
	Claims    *Claims
}

// Issuer はHS256でトークンを署名・検証する。
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewIssuer はIssuerを生成する。
func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue はsubjectに対してttl後に失効するトークンを発行する。
func (i *Issuer) Issue(subject Subject, ttl time.Duration) (Issued, error) {
	now := i.now()
	claims := &Claims{
		Email: subject.Email,
		Role:  subject.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    i.issuer,
			Subject:   subject.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return Issued{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		Claims:    claims,
	}, nil
}

// Parse はトークンを検証してクレームを返す。
// 検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
