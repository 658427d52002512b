package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/annel0/voxel-stream/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	secret, err := GenerateSecureSecret()
	require.NoError(t, err)
	s, err := NewSigner(secret, time.Hour)
	require.NoError(t, err)
	return s
}

func TestSigner_GenerateAndValidate(t *testing.T) {
	s := newTestSigner(t)
	op := &Operator{ID: 42, Username: "ops"}

	token, err := s.Generate(op)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "JWT состоит из трех частей")

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.OperatorID)
	assert.Equal(t, "ops", claims.Username)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestSigner_RejectsInvalidTokens(t *testing.T) {
	s := newTestSigner(t)

	for _, token := range []string{
		"",
		"not.a.jwt",
		"invalid.token.here",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	} {
		_, err := s.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "токен %q прошел проверку", token)
	}

	// Чужой секрет
	other := newTestSigner(t)
	token, err := other.Generate(&Operator{ID: 1, Username: "x"})
	require.NoError(t, err)
	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_Expiry(t *testing.T) {
	s := newTestSigner(t)
	issued := time.Now()
	s.now = func() time.Time { return issued }

	token, err := s.Generate(&Operator{ID: 1, Username: "ops"})
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "Просроченный токен отклоняется")
}

func TestNewSigner_Secrets(t *testing.T) {
	_, err := NewSigner("", 0)
	assert.NoError(t, err, "Пустой секрет заменяется случайным")

	_, err = NewSigner("dG9vLXNob3J0", time.Hour)
	assert.ErrorIs(t, err, ErrWeakSecret)

	_, err = NewSigner("invalid-base64-@#$%", time.Hour)
	assert.Error(t, err)

	a, err := GenerateSecureSecret()
	require.NoError(t, err)
	b, err := GenerateSecureSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 40, "base64 от 32 байт")
}

func TestOperatorStore_Authenticate(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	store, err := OperatorsFromConfig(config.AuthConfig{
		Operators: []config.OperatorConfig{{Username: "Admin", PasswordHash: hash}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	op, err := store.Authenticate("admin", "s3cret")
	require.NoError(t, err, "Имя без учета регистра")
	assert.Equal(t, uint64(1), op.ID)
	assert.False(t, op.LastLogin.IsZero())

	_, err = store.Authenticate("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = store.Authenticate("ghost", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = store.Add("ADMIN", hash)
	assert.ErrorIs(t, err, ErrOperatorExists)
	_, err = store.Get("nobody")
	assert.ErrorIs(t, err, ErrOperatorNotFound)
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "pw"))
	assert.False(t, CheckPassword(hash, "pW"))
	assert.False(t, CheckPassword("not-a-hash", "pw"))
}
