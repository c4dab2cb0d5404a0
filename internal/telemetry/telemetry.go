package telemetry

import (
	"log"
	"maps"
	"sync"
	"sync/atomic"
)

// Logger exposes the plain logging the transport and app layers need.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return LoggerFunc(func(format string, args ...any) {
		if logger == nil {
			return
		}
		logger.Printf(format, args...)
	})
}

// Metrics is the counter sink streams report into.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

type nopMetrics struct{}

func (nopMetrics) Add(string, uint64)   {}
func (nopMetrics) Store(string, uint64) {}

// OrNop returns m, or a sink that discards values when m is nil.
func OrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

// Counters is a concurrency-safe Metrics implementation.
type Counters struct {
	mu     sync.RWMutex
	values map[string]*atomic.Uint64
}

func NewCounters() *Counters {
	return &Counters{values: make(map[string]*atomic.Uint64)}
}

func (c *Counters) slot(key string) *atomic.Uint64 {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok = c.values[key]; !ok {
		v = new(atomic.Uint64)
		c.values[key] = v
	}
	return v
}

// Add increments key by delta.
func (c *Counters) Add(key string, delta uint64) {
	c.slot(key).Add(delta)
}

// Store sets key to value.
func (c *Counters) Store(key string, value uint64) {
	c.slot(key).Store(value)
}

// Snapshot copies every counter.
func (c *Counters) Snapshot() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]uint64, len(c.values))
	for k, v := range c.values {
		out[k] = v.Load()
	}
	return out
}

// Merge returns a copy of a with every value of b added.
func Merge(a, b map[string]uint64) map[string]uint64 {
	out := maps.Clone(a)
	if out == nil {
		out = make(map[string]uint64, len(b))
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}
