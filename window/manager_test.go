package window

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := NewManager(10, 10*time.Second, zap.NewNop())
	m.SetClock(clock.Now)
	return m, clock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func addMany(t *testing.T, m *Manager, windowID string, n int) []string {
	t.Helper()
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key, err := m.Add(windowID, []byte(fmt.Sprintf("item-%d", i)))
		require.NoError(t, err)
		keys = append(keys, key)
	}
	return keys
}

func slideWindow(t *testing.T, m *Manager, windowID string) []string {
	t.Helper()
	var keys []string
	for {
		key, err := m.NextKey(windowID)
		require.NoError(t, err)
		if key == "" {
			return keys
		}
		keys = append(keys, key)
	}
}

func TestCreateWindow(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateWindow("w", false)
	require.NoError(t, err)
	assert.Contains(t, m.Windows(), "w")

	t.Run("RecreateIsNoop", func(t *testing.T) {
		created, err := m.CreateWindow("w", false)
		require.NoError(t, err)
		assert.False(t, created.IsZero())
	})

	t.Run("StrictRecreateFails", func(t *testing.T) {
		_, err := m.CreateWindow("w", true)
		assert.ErrorIs(t, err, ErrWindowExists)
	})
}

func TestRemoveWindow(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateWindow("w", false)
	require.NoError(t, err)

	key, err := m.Add("w", []byte("payload"))
	require.NoError(t, err)

	// Busy while a key is waiting.
	assert.ErrorIs(t, m.RemoveWindow("w"), ErrWindowBusy)

	got, err := m.NextKey("w")
	require.NoError(t, err)
	assert.Equal(t, key, got)
	data, ok := m.GetData("w", key)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)

	// Still busy while the key is in flight.
	assert.ErrorIs(t, m.RemoveWindow("w"), ErrWindowBusy)

	require.NoError(t, m.RemoveKey("w", key))
	require.NoError(t, m.RemoveWindow("w"))
	assert.NotContains(t, m.Windows(), "w")
}

func TestRemoveUnknownWindow(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.RemoveWindow("nope"), ErrUnknownWindow)
}

func TestAddToWindow(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateWindow("w", false)
	require.NoError(t, err)

	addMany(t, m, "w", 10)
	assert.Equal(t, 10, m.CountWaiting("w"))
	assert.Equal(t, 0, m.CountInFlight("w"))
}

func TestFetchingFromWindow(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateWindow("w", false)
	require.NoError(t, err)

	added := addMany(t, m, "w", 12)

	var flightKeys []string
	for i := 0; i < 10; i++ {
		key, err := m.NextKey("w")
		require.NoError(t, err)
		require.NotEmpty(t, key)
		flightKeys = append(flightKeys, key)
	}

	// The window is full now.
	key, err := m.NextKey("w")
	require.NoError(t, err)
	assert.Empty(t, key)

	// Data comes out in the order it went in.
	for i, flightKey := range flightKeys {
		assert.Equal(t, added[i], flightKey)
		data, ok := m.GetData("w", flightKey)
		require.True(t, ok)
		assert.Equal(t, []byte(fmt.Sprintf("item-%d", i)), data)
	}

	// Removing one frees a slot for the next.
	require.NoError(t, m.RemoveKey("w", flightKeys[0]))
	key, err = m.NextKey("w")
	require.NoError(t, err)
	assert.NotEmpty(t, key)
}

func TestExternalIDMapping(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateWindow("w", false)
	require.NoError(t, err)

	require.NoError(t, m.SetExternalID("w", "flight_key", "external_id"))

	external, ok := m.GetExternalID("w", "flight_key")
	require.True(t, ok)
	assert.Equal(t, "external_id", external)

	internal, ok := m.GetInternalID("w", "external_id")
	require.True(t, ok)
	assert.Equal(t, "flight_key", internal)
}

func TestRemoveKeyClearsIDMappings(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateWindow("w", false)
	require.NoError(t, err)

	require.NoError(t, m.SetExternalID("w", "flight_key", "external_id"))
	require.NoError(t, m.RemoveKey("w", "flight_key"))

	_, ok := m.GetExternalID("w", "flight_key")
	assert.False(t, ok)
	_, ok = m.GetInternalID("w", "external_id")
	assert.False(t, ok)
}

func TestFlightExpiry(t *testing.T) {
	m, clock := newTestManager(t)
	_, err := m.CreateWindow("w", false)
	require.NoError(t, err)

	addMany(t, m, "w", 30)

	slideWindow(t, m, "w")
	clock.Advance(10 * time.Second)
	m.ClearExpiredFlightKeys()
	assert.Len(t, m.ExpiredFlightKeys("w"), 10)

	slideWindow(t, m, "w")
	clock.Advance(10 * time.Second)
	m.ClearExpiredFlightKeys()
	assert.Len(t, m.ExpiredFlightKeys("w"), 20)

	slideWindow(t, m, "w")
	clock.Advance(10 * time.Second)
	m.ClearExpiredFlightKeys()
	assert.Len(t, m.ExpiredFlightKeys("w"), 30)

	assert.Equal(t, 0, m.CountInFlight("w"))
	assert.Equal(t, 0, m.CountWaiting("w"))
}

func TestMonitorOnce(t *testing.T) {
	m, _ := newTestManager(t)
	windowIDs := []string{"w1", "w2"}
	for _, id := range windowIDs {
		_, err := m.CreateWindow(id, false)
		require.NoError(t, err)
		addMany(t, m, id, 20)
	}

	seen := map[string][]string{}
	callback := func(windowID, key string) {
		seen[windowID] = append(seen[windowID], key)
	}

	m.MonitorOnce(callback, false, nil)
	assert.Len(t, seen["w1"], 10)
	assert.Len(t, seen["w2"], 10)

	// Nothing changes until flights are removed.
	m.MonitorOnce(callback, false, nil)
	assert.Len(t, seen["w1"], 10)
	assert.Len(t, seen["w2"], 10)

	for windowID, keys := range seen {
		for _, key := range keys {
			require.NoError(t, m.RemoveKey(windowID, key))
		}
	}

	m.MonitorOnce(callback, false, nil)
	assert.Len(t, seen["w1"], 20)
	assert.Len(t, seen["w2"], 20)

	// Cleanup removes now-empty windows.
	for windowID, keys := range seen {
		for _, key := range keys[10:] {
			require.NoError(t, m.RemoveKey(windowID, key))
		}
	}
	var cleaned []string
	m.MonitorOnce(callback, true, func(windowID string) {
		cleaned = append(cleaned, windowID)
	})
	assert.Empty(t, m.Windows())
	assert.ElementsMatch(t, windowIDs, cleaned)
}

func TestNextKeyOnEmptyWindow(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateWindow("w", false)
	require.NoError(t, err)

	key, err := m.NextKey("w")
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestNextKeyUnknownWindow(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.NextKey("nope")
	assert.ErrorIs(t, err, ErrUnknownWindow)
}
