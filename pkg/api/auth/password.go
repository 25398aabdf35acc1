package auth

import (
	"github.com/tauraamui/xerror"
	"golang.org/x/crypto/bcrypt"
)

var ErrWrongPassword = xerror.New("password does not match")

func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", xerror.New("password cannot be blank")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", xerror.Errorf("unable to hash password: %w", err)
	}
	return string(hash), nil
}

func ComparePassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return ErrWrongPassword
		}
		return xerror.Errorf("unable to compare password: %w", err)
	}
	return nil
}
