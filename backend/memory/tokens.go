package memory

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
)

const refreshTokenLength = 32 // bytes, 256 bits

// accessClaims are the claims carried by an issued access token.
type accessClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// tokenIssuer signs and verifies access tokens with a shared HMAC secret.
type tokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func (t *tokenIssuer) issue(user *users.User, sessionID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(t.ttl)
	claims := accessClaims{
		Email:     user.Email,
		SessionID: sessionID,
		Role:      "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// verify checks the signature and expiry of rawToken at now.
func (t *tokenIssuer) verify(rawToken string, now time.Time) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func newRefreshToken() (string, error) {
	b := make([]byte, refreshTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[newRefreshToken] rand.Read")
	}
	return hex.EncodeToString(b), nil
}

func newSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
