// Package permission models host permissions that gate capability handlers.
//
// Grants are read at call time on every check and never cached by handlers,
// so a revoke takes effect on the next dispatched command.
package permission

import (
	"sort"
	"sync"
)

// Well-known host permissions.
const (
	RadioControl     = "RADIO_CONTROL"
	BluetoothAdmin   = "BLUETOOTH_ADMIN"
	BluetoothScan    = "BLUETOOTH_SCAN"
	BluetoothConnect = "BLUETOOTH_CONNECT"
	ScreenCapture    = "SCREEN_CAPTURE"
)

// Checker answers whether a host permission is currently granted.
type Checker interface {
	Granted(name string) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(name string) bool

// Granted calls f(name).
func (f CheckerFunc) Granted(name string) bool {
	return f(name)
}

// Missing returns the subset of required permissions that checker does not
// grant, in the order given. A nil checker grants nothing.
func Missing(checker Checker, required []string) []string {
	var missing []string
	for _, name := range required {
		if checker == nil || !checker.Granted(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Grants is a runtime-mutable set of granted permissions.
type Grants struct {
	mu      sync.RWMutex
	granted map[string]struct{}
}

// NewGrants creates a grant set holding the given permissions.
func NewGrants(initial ...string) *Grants {
	g := &Grants{granted: make(map[string]struct{}, len(initial))}
	for _, name := range initial {
		if name != "" {
			g.granted[name] = struct{}{}
		}
	}
	return g
}

// Granted reports whether name is currently granted.
func (g *Grants) Granted(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.granted[name]
	return ok
}

// Grant adds name to the set. It reports whether the set changed.
func (g *Grants) Grant(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.granted[name]; ok {
		return false
	}
	g.granted[name] = struct{}{}
	return true
}

// Revoke removes name from the set. It reports whether the set changed.
func (g *Grants) Revoke(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.granted[name]; !ok {
		return false
	}
	delete(g.granted, name)
	return true
}

// List returns the granted permissions in sorted order.
func (g *Grants) List() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.granted))
	for name := range g.granted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
