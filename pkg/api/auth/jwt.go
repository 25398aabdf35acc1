package auth

import (
	"errors"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/tauraamui/xerror"
)

const audience = "edgeview"

var tokenLifetime = time.Minute * 15

type customClaims struct {
	Subject string `json:"sub"`
	jwt.StandardClaims
}

var timeNow = func() time.Time {
	return time.Now()
}

func GenToken(secret, subject string) (string, error) {
	claims := customClaims{
		Subject: subject,
		StandardClaims: jwt.StandardClaims{
			Audience:  audience,
			ExpiresAt: timeNow().UTC().Add(tokenLifetime).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken returns the subject of a token signed with secret.
func ValidateToken(secret, tokenString string) (string, error) {
	parser := jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(
		tokenString,
		&customClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, xerror.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)

	if err != nil {
		return "", xerror.Errorf("unable to validate token: %w", err)
	}

	return checkClaims(token.Claims)
}

func checkClaims(claims jwt.Claims) (string, error) {
	cc, ok := claims.(*customClaims)
	if !ok {
		return "", errors.New("unable to parse claims")
	}

	if !cc.VerifyAudience(audience, true) {
		return "", errors.New("auth token has wrong audience")
	}

	if cc.ExpiresAt < timeNow().UTC().Unix() {
		return "", errors.New("auth token has expired")
	}

	return cc.Subject, nil
}
