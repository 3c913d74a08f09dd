package config

import (
	"errors"
	"fmt"
)

// Виды ошибок конфигурации. Проверяются через errors.Is.
var (
	ErrMissing      = errors.New("required variable is missing")
	ErrMalformed    = errors.New("malformed variable")
	ErrUnknownLevel = errors.New("unknown log level")
)

// VarError — ошибка валидации конкретной переменной окружения.
// Русский комментарий: Вместо assert'ов возвращаем типизированную ошибку,
// а решение об остановке процесса принимает точка входа.
type VarError struct {
	Name  string // имя переменной окружения
	Value string // значение как оно было прочитано (для секретов не заполняется)
	Err   error  // один из ErrMissing / ErrMalformed / ErrUnknownLevel
}

func (e *VarError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s=%q: %v", e.Name, e.Value, e.Err)
}

func (e *VarError) Unwrap() error { return e.Err }

func missing(name string) error {
	return &VarError{Name: name, Err: ErrMissing}
}

func malformed(name, value string) error {
	return &VarError{Name: name, Value: value, Err: ErrMalformed}
}
