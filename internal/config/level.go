package config

import (
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level — каноническое имя уровня логирования.
// Русский комментарий: Переменная DEADLINES_LOG_LEVEL принимает как имя уровня
// (в любом регистре), так и его числовой код. Таблица кодов общепринятая: 0/10/20/30/40/50.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelFatal    Level = "FATAL"
	LevelError    Level = "ERROR"
	LevelWarning  Level = "WARNING"
	LevelWarn     Level = "WARN"
	LevelInfo     Level = "INFO"
	LevelDebug    Level = "DEBUG"
	LevelNotSet   Level = "NOTSET"
)

// DefaultLevel — самый строгий уровень, фактически выключает логирование.
const DefaultLevel = LevelCritical

var nameToCode = map[Level]int{
	LevelCritical: 50,
	LevelFatal:    50,
	LevelError:    40,
	LevelWarning:  30,
	LevelWarn:     30,
	LevelInfo:     20,
	LevelDebug:    10,
	LevelNotSet:   0,
}

var codeToName = map[int]Level{
	50: LevelCritical,
	40: LevelError,
	30: LevelWarning,
	20: LevelInfo,
	10: LevelDebug,
	0:  LevelNotSet,
}

// LevelFromCode возвращает каноническое имя для известного числового кода.
func LevelFromCode(code int) (Level, bool) {
	lvl, ok := codeToName[code]
	return lvl, ok
}

// ResolveLevel превращает значение переменной в каноническое имя уровня.
// Порядок: имя без учёта регистра, затем строка из цифр с известным кодом.
func ResolveLevel(raw string) (Level, error) {
	if lvl := Level(strings.ToUpper(raw)); isKnown(lvl) {
		return lvl, nil
	}
	if isDigits(raw) {
		if code, err := strconv.Atoi(raw); err == nil {
			if lvl, ok := LevelFromCode(code); ok {
				return lvl, nil
			}
		}
	}
	return "", &VarError{Name: EnvLogLevel, Value: raw, Err: ErrUnknownLevel}
}

// Code — числовой код уровня.
func (l Level) Code() int {
	return nameToCode[l]
}

// Zap — соответствующий уровень zap.
func (l Level) Zap() zapcore.Level {
	switch l {
	case LevelCritical, LevelFatal:
		return zapcore.FatalLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarning, LevelWarn:
		return zapcore.WarnLevel
	case LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func isKnown(l Level) bool {
	_, ok := nameToCode[l]
	return ok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
