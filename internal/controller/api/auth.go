package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are issued by the identity service; this API only verifies them.
//
// The user id travels in "sub" as a number and decodes into Sub, so the
// embedded RegisteredClaims.Subject stays empty and GetSubject returns "".
// Do not add jwt.WithSubject to Parse.
type Claims struct {
	Sub   int64  `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Sub <= 0 {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type ctxKey string

const ctxClaims ctxKey = "claims"

// RequireJWT rejects requests without a valid bearer token.
func (a *Authenticator) RequireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "invalid authorization header", CodeUnauthorized)
			return
		}

		claims, err := a.Parse(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			code := CodeInvalidToken
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = CodeExpiredToken
			}
			writeError(w, http.StatusUnauthorized, "invalid authorization token", code)
			return
		}

		ctx := context.WithValue(r.Context(), ctxClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(ctxClaims).(*Claims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("no claims in context")
	}
	return claims, nil
}
