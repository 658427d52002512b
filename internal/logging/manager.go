package logging

import (
	"fmt"
	"sync"
)

// LoggerManager управляет логгерами компонентов одного процесса
type LoggerManager struct {
	mu           sync.RWMutex
	dir          string
	consoleLevel LogLevel
	fileLevel    LogLevel
	loggers      map[string]*Logger
}

// NewLoggerManager создает менеджер с файлами логов в dir.
// Пустой dir означает логгеры только для консоли.
func NewLoggerManager(dir string, consoleLevel, fileLevel LogLevel) *LoggerManager {
	return &LoggerManager{
		dir:          dir,
		consoleLevel: consoleLevel,
		fileLevel:    fileLevel,
		loggers:      make(map[string]*Logger),
	}
}

// GetLogger возвращает логгер для компонента, создавая его при необходимости
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	if logger, exists := lm.loggers[component]; exists {
		lm.mu.RUnlock()
		return logger, nil
	}
	lm.mu.RUnlock()

	// Создаем новый логгер под write lock
	lm.mu.Lock()
	defer lm.mu.Unlock()

	// Проверяем еще раз на случай гонки
	if logger, exists := lm.loggers[component]; exists {
		return logger, nil
	}

	var logger *Logger
	if lm.dir == "" {
		logger = NewConsoleLogger(component)
	} else {
		var err error
		logger, err = NewLoggerInDir(lm.dir, component)
		if err != nil {
			return nil, fmt.Errorf("не удалось создать логгер для %s: %w", component, err)
		}
	}
	logger.SetLevels(lm.consoleLevel, lm.fileLevel)

	lm.loggers[component] = logger
	return logger, nil
}

// GetComponentLogger возвращает логгер или консольный fallback при ошибке
func (lm *LoggerManager) GetComponentLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err != nil {
		fallback := NewConsoleLogger(component)
		fallback.Warn("⚠️ Файловый логгер недоступен: %v", err)
		return fallback
	}
	return logger
}

// CloseAll закрывает все логгеры
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("не удалось закрыть логгер %s: %w", component, err)
		}
	}

	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// ListComponents возвращает список всех зарегистрированных компонентов
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	return components
}

// SetLogLevel устанавливает уровень логирования для компонента
func (lm *LoggerManager) SetLogLevel(component string, consoleLevel, fileLevel LogLevel) error {
	lm.mu.RLock()
	logger, exists := lm.loggers[component]
	lm.mu.RUnlock()

	if !exists {
		return fmt.Errorf("логгер компонента %s не найден", component)
	}

	logger.SetLevels(consoleLevel, fileLevel)
	return nil
}
