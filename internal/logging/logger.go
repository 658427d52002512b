package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	OFF
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case OFF:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации. Пустая строка означает INFO.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "OFF", "NONE":
		return OFF, nil
	default:
		return INFO, fmt.Errorf("неизвестный уровень логирования: %q", s)
	}
}

// Logger пишет в консоль и (опционально) в файл компонента.
// В файл по умолчанию попадают все уровни, в консоль INFO и выше.
type Logger struct {
	mu              sync.RWMutex
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

// DefaultDir каталог для файлов логов
const DefaultDir = "logs"

// NewLogger создает логгер компонента с файлом logs/<component>_<timestamp>.log
func NewLogger(component string) (*Logger, error) {
	return NewLoggerInDir(DefaultDir, component)
}

// NewLoggerInDir создает логгер компонента с файлом в каталоге dir
func NewLoggerInDir(dir, component string) (*Logger, error) {
	// Создаем директорию для логов
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}

	// Создаем файл для логов с временной меткой
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	return &Logger{
		component:       component,
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		fileLogger:      log.New(file, "", log.LstdFlags|log.Lmicroseconds),
		file:            file,
		minConsoleLevel: INFO,
		minFileLevel:    TRACE,
	}, nil
}

// NewConsoleLogger создает логгер только для консоли
func NewConsoleLogger(component string) *Logger {
	return NewWriterLogger(component, os.Stdout, INFO)
}

// NewWriterLogger создает логгер, пишущий в произвольный writer (удобно в тестах)
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", log.LstdFlags),
		minConsoleLevel: level,
		minFileLevel:    OFF,
	}
}

// NewNopLogger логгер, который ничего не пишет
func NewNopLogger() *Logger {
	return NewWriterLogger("nop", io.Discard, OFF)
}

// Component возвращает имя компонента
func (l *Logger) Component() string {
	return l.component
}

// With возвращает логгер подкомпонента с теми же выводами
func (l *Logger) With(sub string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		component:       l.component + "." + sub,
		consoleLogger:   l.consoleLogger,
		fileLogger:      l.fileLogger,
		minConsoleLevel: l.minConsoleLevel,
		minFileLevel:    l.minFileLevel,
	}
}

// SetLevels меняет минимальные уровни вывода
func (l *Logger) SetLevels(consoleLevel, fileLevel LogLevel) {
	l.mu.Lock()
	l.minConsoleLevel = consoleLevel
	l.minFileLevel = fileLevel
	l.mu.Unlock()
}

// Enabled проверяет, будет ли сообщение уровня level куда-либо записано
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return (l.consoleLogger != nil && level >= l.minConsoleLevel) ||
		(l.fileLogger != nil && level >= l.minFileLevel)
}

// Close закрывает файл логов
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// log внутренняя функция для логирования
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	toConsole := l.consoleLogger != nil && level >= l.minConsoleLevel
	toFile := l.fileLogger != nil && level >= l.minFileLevel
	if !toConsole && !toFile {
		return
	}

	message := fmt.Sprintf("[%s] [%s] %s", level.String(), l.component, fmt.Sprintf(format, args...))
	if toFile {
		l.fileLogger.Println(message)
	}
	if toConsole {
		l.consoleLogger.Println(message)
	}
}

// Логгер по умолчанию для бинарников. Компоненты конвейера получают логгер явно.
var (
	defaultMu     sync.RWMutex
	defaultLogger = NewConsoleLogger("main")
)

// InitDefaultLogger создает файловый логгер по умолчанию
func InitDefaultLogger(component string) error {
	logger, err := NewLogger(component)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
	return nil
}

// CloseDefaultLogger закрывает логгер по умолчанию
func CloseDefaultLogger() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger != nil {
		defaultLogger.Close()
	}
}

// Default возвращает логгер по умолчанию
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func Trace(format string, args ...interface{}) { Default().log(TRACE, format, args...) }
func Debug(format string, args ...interface{}) { Default().log(DEBUG, format, args...) }
func Info(format string, args ...interface{})  { Default().log(INFO, format, args...) }
func Warn(format string, args ...interface{})  { Default().log(WARN, format, args...) }
func Error(format string, args ...interface{}) { Default().log(ERROR, format, args...) }
