package registry

import (
	"errors"
	"fmt"
)

// Key — символическое имя слота в реестре.
type Key string

// KeyClient — слот для хэндла Telegram клиента.
const KeyClient Key = "tgclient"

// ErrUnknownKey возвращается при чтении ключа, который никогда не записывался.
var ErrUnknownKey = errors.New("unknown registry key")

// Registry хранит уже созданные ресурсы процесса.
// Русский комментарий: Реестр принадлежит точке входа и передаётся компонентам явно.
// Вытеснения, TTL и блокировок нет: единственная запись происходит на старте,
// до того как появляется какая-либо конкурентная активность.
type Registry struct {
	slots map[Key]any
}

// New создаёт реестр с пустым слотом клиента.
func New() *Registry {
	return &Registry{
		slots: map[Key]any{
			KeyClient: nil,
		},
	}
}

// Get возвращает значение слота. Пустой известный слот даёт (nil, nil).
func (r *Registry) Get(key Key) (any, error) {
	v, ok := r.slots[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return v, nil
}

// Add записывает значение в слот, перезаписывая предыдущее.
func (r *Registry) Add(key Key, value any) {
	r.slots[key] = value
}

// Lookup — типизированное чтение слота.
// ok == false, если слот пуст или в нём значение другого типа.
func Lookup[T any](r *Registry, key Key) (v T, ok bool, err error) {
	raw, err := r.Get(key)
	if err != nil {
		return v, false, err
	}
	v, ok = raw.(T)
	return v, ok, nil
}
