package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword возвращает bcrypt-хэш пароля с DefaultCost
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword сравнивает bcrypt-хэш с паролем
func CheckPassword(hash string, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
