package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer издатель токенов управляющего API
const Issuer = "voxel-stream"

var (
	// ErrInvalidToken токен не прошел проверку
	ErrInvalidToken = errors.New("недействительный токен")
	// ErrWeakSecret секрет короче 32 байт
	ErrWeakSecret = errors.New("секрет должен быть не короче 32 байт")
)

// Claims утверждения токена оператора
type Claims struct {
	OperatorID uint64 `json:"operator_id"`
	Username   string `json:"username"`
	jwt.RegisteredClaims
}

// Signer выпускает и проверяет токены HS256 одним секретом
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner создает подписчика из секрета в base64.
// Пустой секрет заменяется случайным: токены живут до перезапуска процесса.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	var key []byte
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("ошибка генерации секрета: %w", err)
		}
	} else {
		decoded, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("секрет не в base64: %w", err)
		}
		if len(decoded) < 32 {
			return nil, ErrWeakSecret
		}
		key = decoded
	}

	return &Signer{secret: key, ttl: ttl, now: time.Now}, nil
}

// Generate выпускает токен для оператора
func (s *Signer) Generate(op *Operator) (string, error) {
	now := s.now()
	claims := &Claims{
		OperatorID: op.ID,
		Username:   op.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   op.Username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate проверяет подпись, срок и издателя токена
func (s *Signer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateSecureSecret генерирует случайный секрет в base64 для конфигурации
func GenerateSecureSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
