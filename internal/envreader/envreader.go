package envreader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Reader — неизменяемый снимок переменных окружения.
// Русский комментарий: Снимок делается один раз при старте, дальше вся конфигурация
// читается только из него. В тестах снимок собирается из map и не трогает os.Environ.
type Reader struct {
	environ map[string]string
}

// FromOS делает снимок текущего окружения процесса.
func FromOS() Reader {
	return Reader{environ: env.ToMap(os.Environ())}
}

// FromMap создаёт Reader поверх готового набора переменных (копия, исходная map не меняется).
func FromMap(m map[string]string) Reader {
	environ := make(map[string]string, len(m))
	for k, v := range m {
		environ[k] = v
	}
	return Reader{environ: environ}
}

// Read возвращает значение переменной и признак того, что она задана.
func (r Reader) Read(name string) (string, bool) {
	v, ok := r.environ[name]
	return v, ok
}

// ReadIf читает переменную только если cond == true.
// Русский комментарий: Для выключенной группы переменные не читаются вообще,
// поэтому отключённая фича не требует своих переменных.
func (r Reader) ReadIf(cond bool, name string) (string, bool) {
	if !cond {
		return "", false
	}
	return r.Read(name)
}

// Truthy — true, если переменная задана непустой строкой (любой, включая "0" и "false").
func (r Reader) Truthy(name string) bool {
	v, _ := r.Read(name)
	return v != ""
}

// Parse раскладывает группу переменных в структуру по тегам `env:"..."`.
func (r Reader) Parse(v any) error {
	return env.ParseWithOptions(v, env.Options{Environment: r.environ})
}

// ParseIf — Parse для группы, включённой флагом. При cond == false структура не трогается.
func (r Reader) ParseIf(cond bool, v any) error {
	if !cond {
		return nil
	}
	return r.Parse(v)
}

// LoadDotenv загружает .env файлы в окружение процесса (уже заданные переменные не перезаписываются).
// Без аргументов читается ./.env, и его отсутствие ошибкой не считается.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(paths, ", "), err)
	}
	return nil
}
