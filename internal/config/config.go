package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/flybasist/deadlines/internal/envreader"
)

// Имена переменных окружения — это внешний контракт процесса.
const (
	EnvClientEnable   = "DEADLINES_TGCLIENT_ENABLE"
	EnvAppName        = "DEADLINES_API_APP_TITLE"
	EnvAPIID          = "DEADLINES_API_ID"
	EnvAPIHash        = "DEADLINES_API_HASH"
	EnvSchedulerDebug = "DEADLINES_ASYNCIO_DEBUG"

	EnvLogEnable   = "DEADLINES_LOG_ENABLE"
	EnvLogFile     = "DEADLINES_LOG_FILE"
	EnvLogFileMode = "DEADLINES_LOG_FILEMOD"
	EnvLogLevel    = "DEADLINES_LOG_LEVEL"

	EnvConnectRetries = "DEADLINES_CONNECT_RETRIES"
)

// Config — вся конфигурация процесса.
// Русский комментарий: Собирается один раз в точке входа и дальше только читается.
// Глобальных экземпляров нет — конфиг передаётся в компоненты явно.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Client    ClientConfig    `yaml:"client"`
	Reporting ReportingConfig `yaml:"reporting"`
}

// LogConfig — настройки логирования.
type LogConfig struct {
	Enable   bool     `yaml:"enable"`
	File     string   `yaml:"file,omitempty"`
	FileMode FileMode `yaml:"file_mode"`
	Level    Level    `yaml:"level"`
}

// FileMode — режим открытия лог-файла.
type FileMode string

const (
	FileModeAppend       FileMode = "a"
	FileModeAppendCreate FileMode = "a+"
	FileModeWrite        FileMode = "w"
	FileModeWriteCreate  FileMode = "w+"
)

// DefaultFileMode — дописывать в конец, создавая файл при необходимости.
const DefaultFileMode = FileModeAppendCreate

// Truncate — нужно ли очищать файл перед началом записи.
func (m FileMode) Truncate() bool {
	return m == FileModeWrite || m == FileModeWriteCreate
}

func (m FileMode) valid() bool {
	switch m {
	case FileModeAppend, FileModeAppendCreate, FileModeWrite, FileModeWriteCreate:
		return true
	}
	return false
}

// ClientConfig — настройки Telegram клиента.
type ClientConfig struct {
	Enable         bool   `yaml:"enable"`
	AppName        string `yaml:"app_name,omitempty"`
	APIID          int    `yaml:"api_id,omitempty"`
	APIHash        string `yaml:"api_hash,omitempty"`
	SchedulerDebug bool   `yaml:"scheduler_debug"`

	Session SessionConfig `yaml:"session"`
	Connect ConnectConfig `yaml:"connect"`
}

// SessionConfig — где хранить сессию и чем авторизоваться, если сессии ещё нет.
type SessionConfig struct {
	Dir      string `env:"DEADLINES_SESSION_DIR" envDefault:"." yaml:"dir"`
	Phone    string `env:"DEADLINES_API_PHONE" yaml:"phone,omitempty"`
	Password string `env:"DEADLINES_API_PASSWORD" yaml:"password,omitempty"`
	BotToken string `env:"DEADLINES_BOT_TOKEN" yaml:"bot_token,omitempty"`
}

// ConnectConfig — политика подключения. Нулевые значения сохраняют исходное поведение:
// одна попытка без таймаута.
type ConnectConfig struct {
	Timeout    time.Duration `env:"DEADLINES_CONNECT_TIMEOUT" envDefault:"0s" yaml:"timeout"`
	Retries    int           `env:"DEADLINES_CONNECT_RETRIES" envDefault:"0" yaml:"retries"`
	RetryDelay time.Duration `env:"DEADLINES_CONNECT_RETRY_DELAY" envDefault:"2s" yaml:"retry_delay"`
}

// ReportingConfig — отправка ошибок в Sentry. Пустой DSN выключает отправку.
type ReportingConfig struct {
	SentryDSN         string `env:"DEADLINES_SENTRY_DSN" yaml:"sentry_dsn,omitempty"`
	SentryEnvironment string `env:"DEADLINES_SENTRY_ENVIRONMENT" envDefault:"production" yaml:"sentry_environment"`
}

// ClientOptions — поля, нужные для создания клиента.
type ClientOptions struct {
	Name    string
	APIID   int
	APIHash string
	Session SessionConfig
}

// ManagerArgs — аргументы менеджера жизненного цикла.
type ManagerArgs struct {
	EnableClient bool
}

// FinishOptions — параметры shutdown-хука. Пока пустые, оставлены как точка расширения.
type FinishOptions struct{}

// Load собирает и валидирует конфигурацию из снимка окружения.
func Load(r envreader.Reader) (*Config, error) {
	cfg := &Config{}

	logCfg, err := loadLog(r)
	if err != nil {
		return nil, err
	}
	cfg.Log = logCfg

	clientCfg, err := loadClient(r)
	if err != nil {
		return nil, err
	}
	cfg.Client = clientCfg

	if err := r.Parse(&cfg.Reporting); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return cfg, nil
}

// LoadFromEnv — Load поверх текущего окружения процесса.
func LoadFromEnv() (*Config, error) {
	return Load(envreader.FromOS())
}

func loadLog(r envreader.Reader) (LogConfig, error) {
	c := LogConfig{
		Enable:   r.Truthy(EnvLogEnable),
		FileMode: DefaultFileMode,
		Level:    DefaultLevel,
	}

	c.File, _ = r.ReadIf(c.Enable, EnvLogFile)
	if c.Enable && c.File == "" {
		return LogConfig{}, missing(EnvLogFile)
	}

	if mode, _ := r.ReadIf(c.Enable, EnvLogFileMode); mode != "" {
		c.FileMode = FileMode(mode)
		if !c.FileMode.valid() {
			return LogConfig{}, malformed(EnvLogFileMode, mode)
		}
	}

	if raw, _ := r.ReadIf(c.Enable, EnvLogLevel); raw != "" {
		lvl, err := ResolveLevel(raw)
		if err != nil {
			return LogConfig{}, err
		}
		c.Level = lvl
	}
	return c, nil
}

func loadClient(r envreader.Reader) (ClientConfig, error) {
	c := ClientConfig{
		Enable:         r.Truthy(EnvClientEnable),
		SchedulerDebug: r.Truthy(EnvSchedulerDebug),
	}
	if !c.Enable {
		return c, nil
	}

	var errs []error

	c.AppName, _ = r.ReadIf(c.Enable, EnvAppName)
	if c.AppName == "" {
		errs = append(errs, missing(EnvAppName))
	}

	rawID, _ := r.ReadIf(c.Enable, EnvAPIID)
	switch {
	case rawID == "":
		errs = append(errs, missing(EnvAPIID))
	case !isDigits(rawID):
		errs = append(errs, malformed(EnvAPIID, rawID))
	default:
		id, err := strconv.Atoi(rawID)
		if err != nil {
			errs = append(errs, malformed(EnvAPIID, rawID))
		}
		c.APIID = id
	}

	c.APIHash, _ = r.ReadIf(c.Enable, EnvAPIHash)
	if c.APIHash == "" {
		errs = append(errs, missing(EnvAPIHash))
	}

	if err := r.ParseIf(c.Enable, &c.Session); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrMalformed, err))
	}
	if err := r.ParseIf(c.Enable, &c.Connect); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrMalformed, err))
	} else if c.Connect.Retries < 0 {
		v, _ := r.Read(EnvConnectRetries)
		errs = append(errs, malformed(EnvConnectRetries, v))
	}

	if len(errs) > 0 {
		return ClientConfig{}, errors.Join(errs...)
	}
	return c, nil
}

// ClientOptions — первый производный вид: параметры конструктора клиента.
func (c *Config) ClientOptions() ClientOptions {
	return ClientOptions{
		Name:    c.Client.AppName,
		APIID:   c.Client.APIID,
		APIHash: c.Client.APIHash,
		Session: c.Client.Session,
	}
}

// ManagerArgs — второй производный вид: запускать ли клиент.
func (c *Config) ManagerArgs() ManagerArgs {
	return ManagerArgs{EnableClient: c.Client.Enable}
}

// FinishArgs — третий производный вид: параметры shutdown-хука.
func (c *Config) FinishArgs() FinishOptions {
	return FinishOptions{}
}

// Redacted возвращает копию с замаскированными секретами — для вывода оператору.
func (c *Config) Redacted() Config {
	out := *c
	out.Client.APIHash = mask(out.Client.APIHash)
	out.Client.Session.Password = mask(out.Client.Session.Password)
	out.Client.Session.BotToken = mask(out.Client.Session.BotToken)
	out.Reporting.SentryDSN = mask(out.Reporting.SentryDSN)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
