package auth

import (
	"fmt"
	"strconv"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var (
	ErrNoSecret     = errors.New("jwt secret not configured")
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier checks HS256 tokens issued by the account service.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates token and returns the user id from its userId or id claim.
func (v *Verifier) Verify(token string) (int, error) {
	if len(v.secret) == 0 {
		return 0, ErrNoSecret
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, errors.Wrap(ErrInvalidToken, err.Error())
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	for _, key := range []string{"userId", "id"} {
		if id, ok := claimInt(claims[key]); ok && id > 0 {
			return id, nil
		}
	}
	return 0, errors.Wrap(ErrInvalidToken, "missing user id claim")
}

func claimInt(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	case string:
		id, err := strconv.Atoi(val)
		return id, err == nil
	}
	return 0, false
}
