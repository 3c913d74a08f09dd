package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/flybasist/deadlines/internal/config"
	"github.com/flybasist/deadlines/internal/logx"
	"github.com/flybasist/deadlines/internal/manager"
	"github.com/flybasist/deadlines/internal/registry"
	"github.com/flybasist/deadlines/internal/reporting"
	"github.com/flybasist/deadlines/internal/tgclient"
)

// Deps — подменяемые части запуска. Нулевые значения дают боевое поведение.
type Deps struct {
	Version   string
	NewLogger func(config.LogConfig) (*logx.Logger, error)
	NewClient func(logger *logx.Logger) manager.Factory
	Finish    FinishFunc
}

// FinishContext — всё, что получает shutdown-хук.
type FinishContext struct {
	Logger   *zap.Logger
	Registry *registry.Registry
	Reporter *reporting.Reporter
	Options  config.FinishOptions
	Err      error // ошибка или паника, с которой завершается Run
}

// FinishFunc — shutdown-хук.
type FinishFunc func(fc FinishContext)

// Run — точка входа процесса.
// Русский комментарий: Порядок важен:
// 1. логгер (если включён) настраивается раньше любых записей в лог;
// 2. менеджер жизненного цикла блокируется до отмены ctx;
// 3. shutdown-хук вызывается ровно один раз на любом пути выхода, включая панику.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (err error) {
	deps = withDefaults(deps)

	logger := logx.Nop()
	reg := registry.New()
	var reporter *reporting.Reporter

	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		deps.Finish(FinishContext{
			Logger:   logger.Logger,
			Registry: reg,
			Reporter: reporter,
			Options:  cfg.FinishArgs(),
			Err:      err,
		})
		_ = logger.Close()
		if r != nil {
			panic(r)
		}
	}()

	if cfg.Log.Enable {
		l, err := deps.NewLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		logger = l
		logger.Banner(fmt.Sprintf("======== deadlines %s ========", deps.Version))
	}

	reporter = reporting.New(cfg.Reporting, deps.Version, logger.Logger)

	args := cfg.ManagerArgs()
	logger.Info("starting deadlines",
		zap.String("version", deps.Version),
		zap.Bool("enable_client", args.EnableClient),
		zap.Bool("scheduler_debug", cfg.Client.SchedulerDebug),
		zap.String("log_level", string(cfg.Log.Level)),
	)

	m := manager.New(manager.Deps{
		Registry:      reg,
		Logger:        logger.Logger,
		NewClient:     deps.NewClient(logger),
		ClientOptions: cfg.ClientOptions(),
		Connect:       cfg.Client.Connect,
		Debug:         cfg.Client.SchedulerDebug,
	})
	return m.Start(ctx, args)
}

// Finish — shutdown-хук по умолчанию: логирует итог, отправляет ошибку в Sentry.
func Finish(fc FinishContext) {
	logger := fc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("finish", zap.Any("options", fc.Options))

	if fc.Registry != nil {
		if c, ok, _ := registry.Lookup[manager.Client](fc.Registry, registry.KeyClient); ok {
			logger.Info("client state on exit", zap.Bool("connected", c.Connected()))
		}
	}

	if fc.Err != nil {
		logger.Error("stopped with error", zap.Error(fc.Err))
		fc.Reporter.CaptureError(fc.Err, map[string]string{"stage": "run"})
	}
	fc.Reporter.Flush()
}

// libraryLogger — логгер gotd. Флаг отладки планировщика на него не влияет:
// библиотека всегда пишет не ниже INFO.
func libraryLogger(logger *logx.Logger) *zap.Logger {
	return logger.ThirdParty("gotd")
}

// NewTelegramFactory — фабрика боевого клиента поверх gotd.
func NewTelegramFactory(logger *logx.Logger) manager.Factory {
	return func(opts config.ClientOptions) (manager.Client, error) {
		c, err := tgclient.New(tgclient.Options{
			Name:       opts.Name,
			APIID:      opts.APIID,
			APIHash:    opts.APIHash,
			ParseMode:  tgclient.ParseModeHTML,
			SessionDir: opts.Session.Dir,
			Phone:      opts.Session.Phone,
			Password:   opts.Session.Password,
			BotToken:   opts.Session.BotToken,
			Logger:     logger.Named("tgclient"),
			LibLogger:  libraryLogger(logger),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func withDefaults(deps Deps) Deps {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	if deps.NewLogger == nil {
		deps.NewLogger = logx.New
	}
	if deps.NewClient == nil {
		deps.NewClient = NewTelegramFactory
	}
	if deps.Finish == nil {
		deps.Finish = Finish
	}
	return deps
}
