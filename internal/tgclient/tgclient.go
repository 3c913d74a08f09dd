package tgclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message/entity"
	"github.com/gotd/td/telegram/message/html"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// Русский комментарий: Пакет оборачивает MTProto клиент gotd в простой хэндл
// с тремя операциями: Connect, Connected, Idle. Протокол, сессия и диспетчеризация
// апдейтов целиком остаются на стороне библиотеки.

// ParseMode — предпочтительный формат текста сообщений.
type ParseMode string

const (
	ParseModeHTML     ParseMode = "html"
	ParseModeMarkdown ParseMode = "markdown"
	ParseModeDisabled ParseMode = "disabled"
)

// ErrNotAuthorized — сессии нет, а данных для входа (бот-токен или телефон) не задано.
var ErrNotAuthorized = errors.New("session is not authorized and no login credentials are configured")

// Options — параметры хэндла.
type Options struct {
	Name      string
	APIID     int
	APIHash   string
	ParseMode ParseMode

	SessionDir string
	Phone      string
	Password   string
	BotToken   string

	Logger    *zap.Logger // собственные сообщения хэндла
	LibLogger *zap.Logger // логгер, передаваемый в gotd
	CodeInput io.Reader   // откуда читать код подтверждения, по умолчанию stdin
}

type promptLine struct {
	text string
	err  error
}

// Client — хэндл подключения к Telegram.
type Client struct {
	opts   Options
	log    *zap.Logger
	prompt *bufio.Reader

	// незавершённое чтение кода; переживает отмену ctx, чтобы не терять строку
	promptMu sync.Mutex
	pending  chan promptLine

	connected atomic.Bool
	username  atomic.Value

	stop   context.CancelFunc
	done   chan struct{}
	runErr error
}

// New проверяет параметры и создаёт хэндл. Сеть не трогает.
func New(opts Options) (*Client, error) {
	switch {
	case opts.Name == "":
		return nil, errors.New("client name is empty")
	case opts.APIID <= 0:
		return nil, fmt.Errorf("invalid api id %d", opts.APIID)
	case opts.APIHash == "":
		return nil, errors.New("api hash is empty")
	}
	if opts.ParseMode == "" {
		opts.ParseMode = ParseModeHTML
	}
	if opts.SessionDir == "" {
		opts.SessionDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LibLogger == nil {
		opts.LibLogger = zap.NewNop()
	}
	if opts.CodeInput == nil {
		opts.CodeInput = os.Stdin
	}

	return &Client{
		opts:   opts,
		log:    opts.Logger.With(zap.String("client", opts.Name)),
		prompt: bufio.NewReader(opts.CodeInput),
	}, nil
}

// SessionPath — файл сессии для клиента с именем name.
func SessionPath(dir, name string) string {
	return filepath.Join(dir, name+".session")
}

// Name — имя клиента (оно же имя файла сессии).
func (c *Client) Name() string { return c.opts.Name }

// ParseMode — формат текста по умолчанию.
func (c *Client) ParseMode() ParseMode { return c.opts.ParseMode }

// Styled превращает текст в опцию gotd согласно ParseMode.
// HTML разбирается парсером gotd, остальные режимы отправляют текст как есть:
// markdown-парсера в gotd нет.
func (c *Client) Styled(text string) styling.StyledTextOption {
	if c.opts.ParseMode == ParseModeHTML {
		return html.String(nil, text)
	}
	return styling.Plain(text)
}

// Render собирает итоговый текст и сущности сообщения.
func (c *Client) Render(text string) (string, []tg.MessageEntityClass, error) {
	var b entity.Builder
	if err := styling.Perform(&b, c.Styled(text)); err != nil {
		return "", nil, fmt.Errorf("render %s text: %w", c.opts.ParseMode, err)
	}
	msg, entities := b.Complete()
	return msg, entities, nil
}

// SessionPath — файл сессии этого клиента.
func (c *Client) SessionPath() string { return SessionPath(c.opts.SessionDir, c.opts.Name) }

// Connected — установлена ли сессия.
func (c *Client) Connected() bool { return c.connected.Load() }

// Username — имя аккаунта, под которым авторизован клиент (после Connect).
func (c *Client) Username() string {
	v, _ := c.username.Load().(string)
	return v
}

// Connect запускает цикл клиента и ждёт готовности сессии.
// Русский комментарий: ctx ограничивает только ожидание рукопожатия. Сам цикл клиента
// живёт до вызова Idle или до собственной ошибки.
func (c *Client) Connect(ctx context.Context) error {
	if c.done != nil {
		select {
		case <-c.done:
		default:
			return errors.New("client is already running")
		}
	}
	if err := os.MkdirAll(c.opts.SessionDir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	client := telegram.NewClient(c.opts.APIID, c.opts.APIHash, telegram.Options{
		Logger:         c.opts.LibLogger,
		SessionStorage: &session.FileStorage{Path: c.SessionPath()},
	})

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	ready := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done, c.runErr = stop, done, nil

	go func() {
		defer close(done)
		defer c.connected.Store(false)
		c.runErr = client.Run(runCtx, func(ctx context.Context) error {
			if err := c.authorize(ctx, client); err != nil {
				return fmt.Errorf("authorize: %w", err)
			}
			if self, err := client.Self(ctx); err == nil {
				c.username.Store(self.Username)
			}
			c.connected.Store(true)
			close(ready)

			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		c.log.Info("client connected", zap.String("session", c.SessionPath()), zap.String("username", c.Username()))
		return nil
	case <-done:
		stop()
		return fmt.Errorf("client run: %w", c.runErr)
	case <-ctx.Done():
		stop()
		<-done
		return ctx.Err()
	}
}

// Idle блокируется до отмены ctx, затем останавливает цикл клиента и дожидается его.
// Если цикл клиента завершился сам с ошибкой, ошибка возвращается.
func (c *Client) Idle(ctx context.Context) error {
	if c.done == nil {
		<-ctx.Done()
		return nil
	}

	select {
	case <-ctx.Done():
		c.log.Info("stopping client")
		c.stop()
		<-c.done
	case <-c.done:
	}

	if c.runErr != nil && !errors.Is(c.runErr, context.Canceled) {
		return fmt.Errorf("client run: %w", c.runErr)
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, client *telegram.Client) error {
	status, err := client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		c.log.Debug("session restored")
		return nil
	}

	if c.opts.BotToken != "" {
		if _, err := client.Auth().Bot(ctx, c.opts.BotToken); err != nil {
			return fmt.Errorf("bot login: %w", err)
		}
		return nil
	}
	if c.opts.Phone == "" {
		return ErrNotAuthorized
	}

	flow := auth.NewFlow(
		auth.Constant(c.opts.Phone, c.opts.Password, auth.CodeAuthenticatorFunc(c.readCode)),
		auth.SendCodeOptions{},
	)
	return client.Auth().IfNecessary(ctx, flow)
}

// readCode спрашивает код подтверждения у оператора.
// Чтение идёт в отдельной горутине: отмена ctx (SIGINT на этапе ввода)
// возвращает управление сразу, а начатое чтение подхватит следующий вызов.
func (c *Client) readCode(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	c.promptMu.Lock()
	ch := c.pending
	if ch == nil {
		fmt.Fprintf(os.Stdout, "Enter the login code for %s: ", c.opts.Phone)
		ch = make(chan promptLine, 1)
		c.pending = ch
		go func() {
			line, err := c.prompt.ReadString('\n')
			ch <- promptLine{text: line, err: err}
		}()
	}
	c.promptMu.Unlock()

	var res promptLine
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-ch:
	}

	c.promptMu.Lock()
	c.pending = nil
	c.promptMu.Unlock()

	if res.err != nil && res.text == "" {
		return "", fmt.Errorf("read code: %w", res.err)
	}
	code := strings.TrimSpace(res.text)
	if code == "" {
		return "", errors.New("empty login code")
	}
	return code, nil
}
