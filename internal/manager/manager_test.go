package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/flybasist/deadlines/internal/config"
	"github.com/flybasist/deadlines/internal/registry"
)

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectCalls int
	failFirst    int
	connectDelay time.Duration
	idleCalls    int
	idleErr      error
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connectCalls++
	call := f.connectCalls
	f.mu.Unlock()

	if f.connectDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.connectDelay):
		}
	}
	if call <= f.failFirst {
		return errors.New("handshake failed")
	}

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Idle(ctx context.Context) error {
	f.mu.Lock()
	f.idleCalls++
	f.mu.Unlock()
	<-ctx.Done()
	return f.idleErr
}

type factory struct {
	calls  int
	client *fakeClient
	err    error
	opts   config.ClientOptions
}

func (f *factory) New(opts config.ClientOptions) (Client, error) {
	f.calls++
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

// cancelledCtx — контекст, который уже отменён: Idle возвращается сразу.
func cancelledCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// TestStartDisabled — клиент выключен: фабрика не вызывается, слот пуст, сразу ожидание
func TestStartDisabled(t *testing.T) {
	reg := registry.New()
	f := &factory{client: &fakeClient{}}
	m := New(Deps{Registry: reg, Logger: zap.NewNop(), NewClient: f.New})

	if err := m.Start(cancelledCtx(), config.ManagerArgs{EnableClient: false}); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if f.calls != 0 {
		t.Errorf("factory must not be called, got %d calls", f.calls)
	}
	if v, err := reg.Get(registry.KeyClient); err != nil || v != nil {
		t.Errorf("client slot must stay empty, got %v, %v", v, err)
	}
}

// TestStartDisabledBlocksUntilCancel — без клиента Start ждёт сигнала
func TestStartDisabledBlocksUntilCancel(t *testing.T) {
	m := New(Deps{Registry: registry.New()})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- m.Start(ctx, config.ManagerArgs{}) }()

	select {
	case <-errCh:
		t.Fatal("Start returned before cancellation")
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

// TestStartEnabledLifecycle — клиент создаётся один раз, попадает в реестр, Connect вызывается один раз
func TestStartEnabledLifecycle(t *testing.T) {
	reg := registry.New()
	client := &fakeClient{}
	f := &factory{client: client}
	opts := config.ClientOptions{Name: "deadlines", APIID: 1, APIHash: "h"}
	m := New(Deps{Registry: reg, NewClient: f.New, ClientOptions: opts})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Start(ctx, config.ManagerArgs{EnableClient: true}) }()

	waitFor(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.idleCalls == 1
	})
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Start() = %v", err)
	}

	if f.calls != 1 {
		t.Errorf("expected 1 factory call, got %d", f.calls)
	}
	if f.opts != opts {
		t.Errorf("factory got %+v, want %+v", f.opts, opts)
	}
	if client.connectCalls != 1 {
		t.Errorf("expected 1 connect call, got %d", client.connectCalls)
	}
	v, err := reg.Get(registry.KeyClient)
	if err != nil || v.(*fakeClient) != client {
		t.Errorf("registry must hold the constructed client, got %v, %v", v, err)
	}
}

// TestStartAlreadyConnected — уже подключённый клиент повторно не подключается
func TestStartAlreadyConnected(t *testing.T) {
	client := &fakeClient{connected: true}
	f := &factory{client: client}
	m := New(Deps{Registry: registry.New(), NewClient: f.New})

	if err := m.Start(cancelledCtx(), config.ManagerArgs{EnableClient: true}); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if client.connectCalls != 0 {
		t.Errorf("expected no connect calls, got %d", client.connectCalls)
	}
	if client.idleCalls != 1 {
		t.Errorf("expected 1 idle call, got %d", client.idleCalls)
	}
}

func TestStartFactoryError(t *testing.T) {
	reg := registry.New()
	f := &factory{err: errors.New("bad options")}
	m := New(Deps{Registry: reg, NewClient: f.New})

	err := m.Start(context.Background(), config.ManagerArgs{EnableClient: true})
	if err == nil || !strings.Contains(err.Error(), "bad options") {
		t.Fatalf("expected factory error, got %v", err)
	}
	if v, _ := reg.Get(registry.KeyClient); v != nil {
		t.Error("failed construction must not populate registry")
	}
}

func TestStartNoFactory(t *testing.T) {
	m := New(Deps{Registry: registry.New()})
	if err := m.Start(context.Background(), config.ManagerArgs{EnableClient: true}); err == nil {
		t.Error("expected error without factory")
	}
}

// TestConnectNoRetryByDefault — без настроек ошибка подключения сразу поднимается наверх
func TestConnectNoRetryByDefault(t *testing.T) {
	client := &fakeClient{failFirst: 1}
	f := &factory{client: client}
	m := New(Deps{Registry: registry.New(), NewClient: f.New})

	err := m.Start(context.Background(), config.ManagerArgs{EnableClient: true})
	if err == nil || !strings.Contains(err.Error(), "handshake failed") {
		t.Fatalf("expected connect error, got %v", err)
	}
	if client.connectCalls != 1 {
		t.Errorf("expected 1 connect call, got %d", client.connectCalls)
	}
	if client.idleCalls != 0 {
		t.Error("Idle must not be called after failed connect")
	}
}

func TestConnectRetry(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	client := &fakeClient{failFirst: 2}
	f := &factory{client: client}
	m := New(Deps{
		Registry:  registry.New(),
		Logger:    zap.New(core),
		NewClient: f.New,
		Connect:   config.ConnectConfig{Retries: 2, RetryDelay: time.Millisecond},
	})

	if err := m.Start(cancelledCtxAfterConnect(client), config.ManagerArgs{EnableClient: true}); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if client.connectCalls != 3 {
		t.Errorf("expected 3 connect calls, got %d", client.connectCalls)
	}
	if n := logs.FilterMessage("failed to connect, retrying...").Len(); n != 2 {
		t.Errorf("expected 2 retry warnings, got %d", n)
	}
}

func TestConnectRetryExhausted(t *testing.T) {
	client := &fakeClient{failFirst: 10}
	f := &factory{client: client}
	m := New(Deps{
		Registry:  registry.New(),
		NewClient: f.New,
		Connect:   config.ConnectConfig{Retries: 1, RetryDelay: time.Millisecond},
	})

	err := m.Start(context.Background(), config.ManagerArgs{EnableClient: true})
	if err == nil || !strings.Contains(err.Error(), "after 2 attempt(s)") {
		t.Fatalf("expected exhausted error, got %v", err)
	}
}

func TestConnectTimeout(t *testing.T) {
	client := &fakeClient{connectDelay: time.Second}
	f := &factory{client: client}
	m := New(Deps{
		Registry:  registry.New(),
		NewClient: f.New,
		Connect:   config.ConnectConfig{Timeout: 10 * time.Millisecond},
	})

	err := m.Start(context.Background(), config.ManagerArgs{EnableClient: true})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSlowPhaseWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	client := &fakeClient{connectDelay: 2 * SlowPhaseThreshold}
	f := &factory{client: client}
	m := New(Deps{Registry: registry.New(), Logger: zap.New(core), NewClient: f.New, Debug: true})

	if err := m.Start(cancelledCtxAfterConnect(client), config.ManagerArgs{EnableClient: true}); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	entries := logs.FilterMessage("slow phase").All()
	if len(entries) != 1 || entries[0].ContextMap()["phase"] != "connect" {
		t.Errorf("expected one slow connect warning, got %v", entries)
	}
}

func TestIdleErrorPropagates(t *testing.T) {
	client := &fakeClient{idleErr: errors.New("connection lost")}
	f := &factory{client: client}
	m := New(Deps{Registry: registry.New(), NewClient: f.New})

	if err := m.Start(cancelledCtxAfterConnect(client), config.ManagerArgs{EnableClient: true}); err == nil {
		t.Error("expected idle error to propagate")
	}
}

// cancelledCtxAfterConnect отменяет контекст, как только клиент подключился.
func cancelledCtxAfterConnect(c *fakeClient) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for !c.Connected() {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	return ctx
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
