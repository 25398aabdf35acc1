package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
)

var CheckClaims = checkClaims

func NewClaims(subject, aud string, expiresAt int64) jwt.Claims {
	return &customClaims{
		Subject: subject,
		StandardClaims: jwt.StandardClaims{
			Audience:  aud,
			ExpiresAt: expiresAt,
		},
	}
}

func OverloadTimeNow(o func() time.Time) func() {
	timeNowRef := timeNow
	timeNow = o
	return func() { timeNow = timeNowRef }
}

func OverloadPasswordPromptReader(overload func(promptText string) ([]byte, error)) func() {
	passwordPromptReaderRef := passwordPromptReader
	passwordPromptReader = funcPasswordReader(overload)
	return func() { passwordPromptReader = passwordPromptReaderRef }
}

type funcPasswordReader func(promptText string) ([]byte, error)

func (f funcPasswordReader) ReadPassword(promptText string) ([]byte, error) {
	return f(promptText)
}
