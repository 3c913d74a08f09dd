package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flybasist/deadlines/internal/config"
	"github.com/flybasist/deadlines/internal/registry"
)

// SlowPhaseThreshold — в режиме отладки фазы дольше этого порога логируются как предупреждения.
const SlowPhaseThreshold = 100 * time.Millisecond

// Client — то, что менеджеру нужно от хэндла Telegram клиента.
type Client interface {
	Connect(ctx context.Context) error
	Connected() bool
	Idle(ctx context.Context) error
}

// Factory создаёт хэндл клиента из производного вида конфигурации.
type Factory func(opts config.ClientOptions) (Client, error)

// Deps — зависимости менеджера.
// Русский комментарий: Всё передаётся явно из точки входа: реестр, логгер, фабрика клиента.
type Deps struct {
	Registry      *registry.Registry
	Logger        *zap.Logger
	NewClient     Factory
	ClientOptions config.ClientOptions
	Connect       config.ConnectConfig
	Debug         bool
}

// Manager управляет жизненным циклом клиента: создать, подключить, ждать.
type Manager struct {
	registry  *registry.Registry
	logger    *zap.Logger
	newClient Factory
	opts      config.ClientOptions
	connect   config.ConnectConfig
	debug     bool
}

// New создаёт менеджер.
func New(deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry:  deps.Registry,
		logger:    logger.Named("manager"),
		newClient: deps.NewClient,
		opts:      deps.ClientOptions,
		connect:   deps.Connect,
		debug:     deps.Debug,
	}
}

// Start запускает включённые компоненты и блокируется до отмены ctx.
// Русский комментарий: Два пути. Клиент выключен — сразу ждём. Клиент включён —
// создаём, кладём в реестр, подключаем (если ещё не подключён) и ждём.
func (m *Manager) Start(ctx context.Context, args config.ManagerArgs) error {
	m.logger.Debug("starting manager", zap.Bool("enable_client", args.EnableClient))

	client, err := m.prepareClientIf(args.EnableClient)
	if err != nil {
		return err
	}

	if client == nil {
		m.logger.Info("telegram client disabled, idling")
		return idle(ctx)
	}

	if !client.Connected() {
		if err := m.connectWithRetry(ctx, client); err != nil {
			return err
		}
	}

	m.logger.Info("waiting for updates")
	return client.Idle(ctx)
}

func (m *Manager) prepareClientIf(enable bool) (Client, error) {
	if !enable {
		return nil, nil
	}
	if m.newClient == nil {
		return nil, errors.New("client factory is not configured")
	}

	client, err := m.newClient(m.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	m.registry.Add(registry.KeyClient, client)
	m.logger.Debug("client initialized and cached", zap.String("name", m.opts.Name))
	return client, nil
}

// connectWithRetry подключает клиент с фиксированной паузой между попытками.
// По умолчанию Retries == 0 — одна попытка, ошибка сразу поднимается наверх.
func (m *Manager) connectWithRetry(ctx context.Context, client Client) error {
	attempts := m.connect.Retries + 1
	for i := 1; ; i++ {
		err := m.connectOnce(ctx, client)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("connect interrupted: %w", err)
		}
		if i >= attempts {
			return fmt.Errorf("failed to connect after %d attempt(s): %w", i, err)
		}

		m.logger.Warn("failed to connect, retrying...",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", m.connect.RetryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect interrupted: %w", ctx.Err())
		case <-time.After(m.connect.RetryDelay):
		}
	}
}

func (m *Manager) connectOnce(ctx context.Context, client Client) error {
	if m.connect.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.connect.Timeout)
		defer cancel()
	}
	done := m.phase("connect")
	defer done()
	return client.Connect(ctx)
}

// phase замеряет длительность фазы. В режиме отладки медленные фазы дают предупреждение.
func (m *Manager) phase(name string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		if m.debug && elapsed > SlowPhaseThreshold {
			m.logger.Warn("slow phase", zap.String("phase", name), zap.Duration("elapsed", elapsed))
			return
		}
		m.logger.Debug("phase finished", zap.String("phase", name), zap.Duration("elapsed", elapsed))
	}
}

// idle — ожидание без клиента: до сигнала завершения.
func idle(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
