package recovery

import (
	"sync"
	"sync/atomic"
)

// ConnectivitySource reports the platform's online state and its transitions.
type ConnectivitySource interface {
	Online() bool
	Watch(onOnline, onOffline func()) (stop func())
}

type listener struct {
	cb      func(online bool)
	mu      sync.Mutex
	removed atomic.Bool
	running atomic.Bool
}

// NetworkMonitor fans connectivity transitions out to listeners.
// Listeners run synchronously, in registration order.
type NetworkMonitor struct {
	mu        sync.Mutex
	online    bool
	listeners []*listener

	dispatchMu sync.Mutex
	stop       func()
}

func NewNetworkMonitor(src ConnectivitySource) *NetworkMonitor {
	m := &NetworkMonitor{online: src.Online()}
	m.stop = src.Watch(
		func() { m.set(true) },
		func() { m.set(false) },
	)
	return m
}

func (m *NetworkMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// AddListener registers cb and returns its unsubscribe func. Once unsubscribe
// returns, cb is never called again.
func (m *NetworkMonitor) AddListener(cb func(online bool)) (unsubscribe func()) {
	l := &listener{cb: cb}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.removed.Store(true)
			// wait out an in-flight call unless we are inside it
			if !l.running.Load() {
				l.mu.Lock()
				l.mu.Unlock()
			}
			m.mu.Lock()
			for i, cur := range m.listeners {
				if cur == l {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					break
				}
			}
			m.mu.Unlock()
		})
	}
}

func (m *NetworkMonitor) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *NetworkMonitor) set(online bool) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	m.online = online
	snapshot := make([]*listener, len(m.listeners))
	copy(snapshot, m.listeners)
	m.mu.Unlock()

	for _, l := range snapshot {
		l.invoke(online)
	}
}

func (l *listener) invoke(online bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.removed.Load() {
		return
	}
	l.running.Store(true)
	defer l.running.Store(false)
	l.cb(online)
}

// Close detaches from the connectivity source.
func (m *NetworkMonitor) Close() {
	if m.stop != nil {
		m.stop()
	}
}
