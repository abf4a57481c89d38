package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	errHostExists  = errors.New("host already registered")
	errUnknownHost = errors.New("unknown host")
)

// Host определяет жизненный цикл входной точки (HTTP, watch и т.п.).
type Host interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HostManager запускает и останавливает хосты в порядке регистрации.
type HostManager struct {
	mu    sync.Mutex
	order []string
	hosts map[string]Host
}

// NewHostManager создает пустой менеджер.
func NewHostManager() *HostManager {
	return &HostManager{hosts: make(map[string]Host)}
}

// Register добавляет хост; имена должны быть уникальны.
func (m *HostManager) Register(host Host) error {
	if host == nil {
		return fmt.Errorf("host is nil: %w", errInvalidArguments)
	}
	name := host.Name()
	if name == "" {
		return fmt.Errorf("host name is empty: %w", errInvalidArguments)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.hosts[name]; exists {
		return fmt.Errorf("%s: %w", name, errHostExists)
	}
	m.hosts[name] = host
	m.order = append(m.order, name)
	return nil
}

func (m *HostManager) snapshot() []Host {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]Host, 0, len(m.order))
	for _, name := range m.order {
		list = append(list, m.hosts[name])
	}
	return list
}

// StartAll запускает хосты; при ошибке уже запущенные останавливаются.
func (m *HostManager) StartAll(ctx context.Context) error {
	list := m.snapshot()
	for i, h := range list {
		if err := h.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = list[j].Stop(ctx)
			}
			return fmt.Errorf("start host %s: %w", h.Name(), err)
		}
	}
	return nil
}

// StopAll останавливает все хосты в обратном порядке и собирает ошибки.
func (m *HostManager) StopAll(ctx context.Context) error {
	list := m.snapshot()
	var errs []error
	for i := len(list) - 1; i >= 0; i-- {
		if err := list[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop host %s: %w", list[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// StopOne останавливает конкретный хост по имени.
func (m *HostManager) StopOne(ctx context.Context, name string) error {
	m.mu.Lock()
	h, ok := m.hosts[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, errUnknownHost)
	}
	if err := h.Stop(ctx); err != nil {
		return fmt.Errorf("stop host %s: %w", h.Name(), err)
	}
	return nil
}
