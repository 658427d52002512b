package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/annel0/voxel-stream/internal/config"
)

var (
	// ErrOperatorNotFound оператор не зарегистрирован
	ErrOperatorNotFound = errors.New("оператор не найден")
	// ErrOperatorExists имя оператора занято
	ErrOperatorExists = errors.New("оператор уже существует")
	// ErrInvalidCredentials неверное имя или пароль
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
)

// Operator учетная запись оператора управляющего API
type Operator struct {
	ID           uint64
	Username     string
	PasswordHash string // bcrypt
	LastLogin    time.Time
}

// OperatorStore потокобезопасный реестр операторов в памяти.
// ID назначаются по порядку с 1.
type OperatorStore struct {
	mu        sync.RWMutex
	operators map[string]*Operator // ключ = lowercase(username)
	nextID    uint64
}

// NewOperatorStore создает пустой реестр
func NewOperatorStore() *OperatorStore {
	return &OperatorStore{
		operators: make(map[string]*Operator),
		nextID:    1,
	}
}

// OperatorsFromConfig заполняет реестр учетными записями из конфигурации
func OperatorsFromConfig(cfg config.AuthConfig) (*OperatorStore, error) {
	s := NewOperatorStore()
	for _, op := range cfg.Operators {
		if _, err := s.Add(op.Username, op.PasswordHash); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add регистрирует оператора с уже посчитанным bcrypt-хэшем
func (s *OperatorStore) Add(username, passwordHash string) (*Operator, error) {
	key := normalize(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.operators[key]; exists {
		return nil, ErrOperatorExists
	}

	op := &Operator{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
	}
	s.nextID++
	s.operators[key] = op
	return op, nil
}

// Get ищет оператора без учета регистра
func (s *OperatorStore) Get(username string) (*Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operators[normalize(username)]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	return op, nil
}

// Len число операторов
func (s *OperatorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.operators)
}

// Authenticate проверяет пароль и отмечает время входа.
// Для неизвестного имени возвращается та же ошибка, что и для неверного пароля.
func (s *OperatorStore) Authenticate(username, password string) (*Operator, error) {
	op, err := s.Get(username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !CheckPassword(op.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	op.LastLogin = time.Now()
	s.mu.Unlock()
	return op, nil
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
