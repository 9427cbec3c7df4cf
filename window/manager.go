// Package window implements a send-window manager: it limits how many
// messages are in flight per logical window and tracks the mapping
// between internal flight keys and the remote ids they were sent as.
package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ismaild/vumi/broker"
	"github.com/ismaild/vumi/interfaces"
)

var (
	// ErrWindowExists is returned by CreateWindow in strict mode when
	// the window is already present.
	ErrWindowExists = errors.New("window already exists")
	// ErrWindowBusy is returned by RemoveWindow while the window still
	// has waiting or in-flight keys.
	ErrWindowBusy = errors.New("window not empty")
	// ErrUnknownWindow is returned for operations on windows that were
	// never created.
	ErrUnknownWindow = errors.New("unknown window")
)

// flight records when a key went out.
type flight struct {
	key    string
	sentAt time.Time
}

type windowState struct {
	createdAt time.Time
	waiting   []string
	inFlight  []flight
	data      map[string][]byte
	external  map[string]string // flight key -> external id
	internal  map[string]string // external id -> flight key
	expired   []string
}

func newWindowState(now time.Time) *windowState {
	return &windowState{
		createdAt: now,
		data:      make(map[string][]byte),
		external:  make(map[string]string),
		internal:  make(map[string]string),
	}
}

// Manager tracks per-window waiting queues and in-flight sets. All
// methods are safe for concurrent use.
type Manager struct {
	WindowSize     int
	FlightLifetime time.Duration

	mu      sync.Mutex
	windows map[string]*windowState
	clock   func() time.Time
	ids     interfaces.IDGenerator
	log     *zap.Logger
}

// NewManager creates a manager with the given window size and flight
// lifetime. A flight older than the lifetime is treated as lost and
// its slot reclaimed.
func NewManager(windowSize int, flightLifetime time.Duration, log *zap.Logger) *Manager {
	return &Manager{
		WindowSize:     windowSize,
		FlightLifetime: flightLifetime,
		windows:        make(map[string]*windowState),
		clock:          time.Now,
		ids:            broker.NewIDGenerator(),
		log:            log.Named("window"),
	}
}

// SetClock injects the time source. Test support.
func (m *Manager) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// SetIDGenerator injects the flight key generator. Test support.
func (m *Manager) SetIDGenerator(ids interfaces.IDGenerator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = ids
}

// CreateWindow registers a window and returns its creation time.
// Recreating an existing window is a no-op unless strict is set.
func (m *Manager) CreateWindow(windowID string, strict bool) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, exists := m.windows[windowID]; exists {
		if strict {
			return time.Time{}, fmt.Errorf("window %s: %w", windowID, ErrWindowExists)
		}
		return w.createdAt, nil
	}
	w := newWindowState(m.clock())
	m.windows[windowID] = w
	return w.createdAt, nil
}

// Windows lists the known window ids.
func (m *Manager) Windows() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.windows))
	for id := range m.windows {
		ids = append(ids, id)
	}
	return ids
}

// RemoveWindow drops an empty window. It fails with ErrWindowBusy
// while keys are still waiting or in flight.
func (m *Manager) RemoveWindow(windowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.windows[windowID]
	if !exists {
		return fmt.Errorf("window %s: %w", windowID, ErrUnknownWindow)
	}
	if len(w.waiting) > 0 || len(w.inFlight) > 0 {
		return fmt.Errorf("window %s: %w", windowID, ErrWindowBusy)
	}
	delete(m.windows, windowID)
	return nil
}

// Add queues data on the window and returns the generated flight key.
func (m *Manager) Add(windowID string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.windows[windowID]
	if !exists {
		return "", fmt.Errorf("window %s: %w", windowID, ErrUnknownWindow)
	}
	key := m.ids.NewID("flight.")
	w.waiting = append(w.waiting, key)
	w.data[key] = append([]byte(nil), data...)
	return key, nil
}

// NextKey moves the oldest waiting key into flight and returns it. It
// returns the empty string when the window is already carrying
// WindowSize flights or nothing is waiting.
func (m *Manager) NextKey(windowID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.windows[windowID]
	if !exists {
		return "", fmt.Errorf("window %s: %w", windowID, ErrUnknownWindow)
	}
	return m.nextKeyLocked(w), nil
}

func (m *Manager) nextKeyLocked(w *windowState) string {
	if len(w.inFlight) >= m.WindowSize || len(w.waiting) == 0 {
		return ""
	}
	key := w.waiting[0]
	w.waiting = w.waiting[1:]
	w.inFlight = append(w.inFlight, flight{key: key, sentAt: m.clock()})
	return key
}

// GetData returns the payload stored for a flight key.
func (m *Manager) GetData(windowID, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.windows[windowID]
	if !exists {
		return nil, false
	}
	data, ok := w.data[key]
	return data, ok
}

// SetExternalID records the remote id a flight was sent as, in both
// directions.
func (m *Manager) SetExternalID(windowID, key, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.windows[windowID]
	if !exists {
		return fmt.Errorf("window %s: %w", windowID, ErrUnknownWindow)
	}
	w.external[key] = externalID
	w.internal[externalID] = key
	return nil
}

// GetExternalID looks up the remote id for a flight key.
func (m *Manager) GetExternalID(windowID, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.windows[windowID]
	if !exists {
		return "", false
	}
	id, ok := w.external[key]
	return id, ok
}

// GetInternalID looks up the flight key for a remote id.
func (m *Manager) GetInternalID(windowID, externalID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.windows[windowID]
	if !exists {
		return "", false
	}
	key, ok := w.internal[externalID]
	return key, ok
}

// RemoveKey releases a flight slot and forgets the key's payload and
// id mappings.
func (m *Manager) RemoveKey(windowID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.windows[windowID]
	if !exists {
		return fmt.Errorf("window %s: %w", windowID, ErrUnknownWindow)
	}
	for i, f := range w.inFlight {
		if f.key == key {
			w.inFlight = append(w.inFlight[:i], w.inFlight[i+1:]...)
			break
		}
	}
	delete(w.data, key)
	if externalID, ok := w.external[key]; ok {
		delete(w.external, key)
		delete(w.internal, externalID)
	}
	return nil
}

// CountWaiting returns how many keys are queued behind the window.
func (m *Manager) CountWaiting(windowID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, exists := m.windows[windowID]; exists {
		return len(w.waiting)
	}
	return 0
}

// CountInFlight returns how many keys are currently in flight.
func (m *Manager) CountInFlight(windowID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, exists := m.windows[windowID]; exists {
		return len(w.inFlight)
	}
	return 0
}

// ExpiredFlightKeys returns every key that has ever expired out of the
// window's flight.
func (m *Manager) ExpiredFlightKeys(windowID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, exists := m.windows[windowID]; exists {
		return append([]string(nil), w.expired...)
	}
	return nil
}

// ClearExpiredFlightKeys reclaims the slots of flights older than
// FlightLifetime across all windows.
func (m *Manager) ClearExpiredFlightKeys() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock().Add(-m.FlightLifetime)
	for id, w := range m.windows {
		var kept []flight
		for _, f := range w.inFlight {
			if f.sentAt.After(cutoff) {
				kept = append(kept, f)
				continue
			}
			w.expired = append(w.expired, f.key)
			m.log.Debug("flight expired",
				zap.String("window_id", id), zap.String("key", f.key))
		}
		w.inFlight = kept
	}
}

// MonitorOnce walks every window and hands each newly available flight
// key to callback. With cleanupEmpty set, windows left completely
// empty afterwards are removed and reported through cleanupCallback.
func (m *Manager) MonitorOnce(callback func(windowID, key string), cleanupEmpty bool, cleanupCallback func(windowID string)) {
	type ready struct{ windowID, key string }

	m.mu.Lock()
	var out []ready
	var empty []string
	for id, w := range m.windows {
		for {
			key := m.nextKeyLocked(w)
			if key == "" {
				break
			}
			out = append(out, ready{windowID: id, key: key})
		}
		if cleanupEmpty && len(w.waiting) == 0 && len(w.inFlight) == 0 {
			empty = append(empty, id)
		}
	}
	for _, id := range empty {
		delete(m.windows, id)
	}
	m.mu.Unlock()

	// Callbacks run outside the lock so they may call back in.
	for _, r := range out {
		callback(r.windowID, r.key)
	}
	if cleanupCallback != nil {
		for _, id := range empty {
			cleanupCallback(id)
		}
	}
}

// Monitor periodically clears expired flights and feeds ready keys to
// callback until ctx is canceled.
func (m *Manager) Monitor(ctx context.Context, interval time.Duration, callback func(windowID, key string), cleanupEmpty bool, cleanupCallback func(windowID string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ClearExpiredFlightKeys()
			m.MonitorOnce(callback, cleanupEmpty, cleanupCallback)
		}
	}
}
