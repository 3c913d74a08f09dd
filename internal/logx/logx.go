package logx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flybasist/deadlines/internal/config"
)

// Русский комментарий: Этот пакет инкапсулирует настройку структурированного логирования.
// Два приёмника: файл с ротацией (lumberjack) на настроенном уровне и stdout на уровне INFO.
// Операционные сообщения пишутся на английском.

// RootName — имя корневого логгера процесса.
const RootName = "deadlines"

// LogRotationConfig содержит параметры ротации логов.
type LogRotationConfig struct {
	MaxSizeMB  int // максимальный размер файла лога в MB
	MaxBackups int // количество старых файлов для хранения
}

// DefaultRotation — ротация по 1 MB, пять архивных файлов.
var DefaultRotation = LogRotationConfig{MaxSizeMB: 1, MaxBackups: 5}

// Logger — корневой логгер процесса.
// Русский комментарий: Помимо обычных структурированных записей умеет писать "баннеры" —
// строки, которые попадают в файл как есть, без префиксов времени и уровня.
// Вариант записи выбирает вызывающий код (Banner vs Info), никакой магии по полям.
type Logger struct {
	*zap.Logger

	banner  *zap.Logger
	file    *lumberjack.Logger
	restore []func()
}

// New настраивает логирование по конфигурации. Вызывать до любых других записей в лог.
func New(cfg config.LogConfig) (*Logger, error) {
	return newLogger(cfg, DefaultRotation, zapcore.Lock(os.Stdout))
}

// Nop — логгер для режима с выключенным логированием.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), banner: zap.NewNop()}
}

func newLogger(cfg config.LogConfig, rotation LogRotationConfig, console zapcore.WriteSyncer) (*Logger, error) {
	if cfg.File == "" {
		return nil, errors.New("log file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if cfg.FileMode.Truncate() {
		if err := os.Truncate(cfg.File, 0); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("truncate log file: %w", err)
		}
	}

	// Настраиваем ротацию логов через lumberjack
	logFile := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
	}
	fileWriter := zapcore.AddSync(logFile)

	fileLevel := cfg.Level.Zap()
	consoleLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= fileLevel && l >= zapcore.InfoLevel
	})

	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), console, consoleLevel)
	fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoderConfig()), fileWriter, fileLevel)
	rawCore := zapcore.NewCore(zapcore.NewConsoleEncoder(rawEncoderConfig()), fileWriter, fileLevel)

	root := zap.New(zapcore.NewTee(consoleCore, fileCore), zap.AddCaller()).Named(RootName)
	banner := zap.New(zapcore.NewTee(consoleCore, rawCore), zap.AddCaller(), zap.AddCallerSkip(1)).Named(RootName)

	l := &Logger{Logger: root, banner: banner, file: logFile}

	// Сторонний код, пишущий через стандартный log или zap.L(), получает тот же вывод на INFO.
	l.restore = append(l.restore, zap.ReplaceGlobals(l.ThirdParty("global")))
	if undo, err := zap.RedirectStdLogAt(l.Named("stdlog"), zapcore.InfoLevel); err == nil {
		l.restore = append(l.restore, undo)
	}
	return l, nil
}

// Banner пишет сообщение в файл без форматирования (в консоль — как обычную INFO-запись).
func (l *Logger) Banner(msg string) {
	l.banner.Info(msg)
}

// ThirdParty возвращает логгер для сторонней библиотеки: её DEBUG-шум отсекается,
// собственный DEBUG процесса при этом продолжает писаться.
func (l *Logger) ThirdParty(name string) *zap.Logger {
	child := l.Named(name)
	if !child.Core().Enabled(zapcore.DebugLevel) {
		return child
	}
	return child.WithOptions(zap.IncreaseLevel(zapcore.InfoLevel))
}

// Close сбрасывает буферы и закрывает файл, возвращает глобальные логгеры на место.
func (l *Logger) Close() error {
	for i := len(l.restore) - 1; i >= 0; i-- {
		l.restore[i]()
	}
	l.restore = nil

	_ = l.Logger.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// fileEncoderConfig: "ts - [LEVEL] - name - file:line::func - msg".
func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "logger",
		CallerKey:        "caller",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeLevel:      bracketLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     fileCallerEncoder,
		ConsoleSeparator: " - ",
	}
}

// consoleEncoderConfig: "[LEVEL] - name - (file::func:line) - msg".
func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := fileEncoderConfig()
	cfg.TimeKey = ""
	cfg.EncodeCaller = consoleCallerEncoder
	return cfg
}

// rawEncoderConfig — только текст сообщения.
func rawEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
	}
}

func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

func fileCallerEncoder(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("%s:%d::%s", filepath.Base(c.File), c.Line, shortFunc(c.Function)))
}

func consoleCallerEncoder(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("(%s::%s:%d)", filepath.Base(c.File), shortFunc(c.Function), c.Line))
}

// shortFunc: "github.com/x/internal/manager.(*Manager).Start" -> "(*Manager).Start".
func shortFunc(fn string) string {
	if i := strings.LastIndexByte(fn, '/'); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.IndexByte(fn, '.'); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}
