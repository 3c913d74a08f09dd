package reporting

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/flybasist/deadlines/internal/config"
)

// FlushTimeout — сколько ждать отправки событий при завершении.
const FlushTimeout = 2 * time.Second

// Reporter отправляет ошибки в Sentry. Нулевой/nil Reporter ничего не делает.
type Reporter struct {
	enabled bool
}

// New инициализирует Sentry. Пустой DSN — отправка выключена, это не ошибка.
func New(cfg config.ReportingConfig, release string, logger *zap.Logger) *Reporter {
	if cfg.SentryDSN == "" {
		logger.Debug("sentry dsn is empty, error reporting disabled")
		return &Reporter{}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		// Отчёты об ошибках не должны мешать запуску.
		logger.Warn("sentry init failed, error reporting disabled", zap.Error(err))
		return &Reporter{}
	}
	logger.Info("sentry initialized", zap.String("environment", cfg.SentryEnvironment))
	return &Reporter{enabled: true}
}

// Enabled — включена ли отправка.
func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// CaptureError отправляет ошибку с тегами.
func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if err == nil || !r.Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush дожидается отправки накопленных событий.
func (r *Reporter) Flush() {
	if !r.Enabled() {
		return
	}
	sentry.Flush(FlushTimeout)
}
