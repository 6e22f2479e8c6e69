// Package di is a small service container used by the modules to share
// lazily constructed singletons.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves registered services.
type ServiceRegistry interface {
	Get(key string) any
}

// Container is a ServiceRegistry that also accepts registrations.
type Container interface {
	ServiceRegistry
	Register(key string, value any)
	RegisterFactory(key string, factory func(ServiceRegistry) any)
	Has(key string) bool
}

type entry struct {
	once    sync.Once
	value   any
	factory func(ServiceRegistry) any
}

type container struct {
	mu       sync.RWMutex
	services map[string]*entry
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{services: make(map[string]*entry)}
}

// Register stores a ready value under key.
func (c *container) Register(key string, value any) {
	e := &entry{value: value}
	e.once.Do(func() {})

	c.mu.Lock()
	c.services[key] = e
	c.mu.Unlock()
}

// RegisterFactory stores a factory invoked once on first Get.
func (c *container) RegisterFactory(key string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	c.services[key] = &entry{factory: factory}
	c.mu.Unlock()
}

func (c *container) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[key]
	return ok
}

// Get returns the service under key, building it on first use.
// It panics when nothing is registered: a missing service is a wiring bug.
func (c *container) Get(key string) any {
	c.mu.RLock()
	e, ok := c.services[key]
	c.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", key))
	}

	e.once.Do(func() {
		e.value = e.factory(c)
	})
	return e.value
}

// Token is a typed service key.
type Token[T any] struct {
	key string
}

// NewToken creates a typed key.
func NewToken[T any](key string) Token[T] {
	return Token[T]{key: key}
}

// Key returns the underlying registry key.
func (t Token[T]) Key() string {
	return t.key
}

// RegisterToken registers a typed lazy singleton.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.key, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves a typed service.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	v, ok := sr.Get(token.key).(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has unexpected type", token.key))
	}
	return v
}
