package clearing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfab/gateway/internal/tenant"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(tenant.Context{TenantID: "acme"}, "samos-primary", NetworkSAMOS, "https://samos.example/api")
	require.NoError(t, err)
	return a
}

func TestNewAdapterDefaults(t *testing.T) {
	a := newTestAdapter(t)

	assert.NotEmpty(t, a.AdapterID)
	assert.Equal(t, StatusActive, a.Status)
	assert.Equal(t, 30, a.TimeoutSeconds)
	assert.Equal(t, 3, a.RetryAttempts)

	events := a.DrainEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(AdapterCreated)
	require.True(t, ok)
	assert.Equal(t, "acme", created.TenantID)
	assert.Equal(t, "samos-primary", created.Name)
}

func TestNewAdapterRejectsBlankFields(t *testing.T) {
	_, err := NewAdapter(tenant.Context{TenantID: "acme"}, "", NetworkRTC, "https://x")
	assert.Error(t, err)

	_, err = NewAdapter(tenant.Context{TenantID: "acme"}, "rtc", NetworkRTC, "")
	assert.Error(t, err)
}

func TestDrainEventsIsOneShot(t *testing.T) {
	a := newTestAdapter(t)
	require.Len(t, a.DrainEvents(), 1)
	assert.Empty(t, a.DrainEvents(), "draining twice must not replay events")
}

func TestAddRouteSortsByPriorityThenRouteID(t *testing.T) {
	a := newTestAdapter(t)
	a.DrainEvents()

	_, err := a.AddRoute("slow", "pacs.008", "BANKB", 5)
	require.NoError(t, err)
	_, err = a.AddRoute("fast", "pacs.008", "BANKB", 1)
	require.NoError(t, err)

	require.Len(t, a.Routes, 2)
	assert.Equal(t, "fast", a.Routes[0].Name)
	assert.Equal(t, "slow", a.Routes[1].Name)

	events := a.DrainEvents()
	require.Len(t, events, 2)
	_, ok := events[0].(RouteAdded)
	assert.True(t, ok)
}

func TestAddRouteRequiresDestination(t *testing.T) {
	a := newTestAdapter(t)
	_, err := a.AddRoute("broken", "pacs.008", "", 1)
	assert.Error(t, err)
}

func TestBestRoute(t *testing.T) {
	a := newTestAdapter(t)
	_, _ = a.AddRoute("backup", "pacs.008", "BANKB", 9)
	primary, _ := a.AddRoute("primary", "pacs.008", "BANKB", 1)
	_, _ = a.AddRoute("other-dest", "pacs.008", "BANKC", 1)

	got, ok := a.BestRoute("BANKB")
	require.True(t, ok)
	assert.Equal(t, primary.RouteID, got.RouteID)

	_, ok = a.BestRoute("BANKZ")
	assert.False(t, ok)
}

func TestBestRouteSkipsInactive(t *testing.T) {
	a := newTestAdapter(t)
	_, _ = a.AddRoute("primary", "pacs.008", "BANKB", 1)
	backup, _ := a.AddRoute("backup", "pacs.008", "BANKB", 2)
	a.Routes[0].Status = StatusInactive

	got, ok := a.BestRoute("BANKB")
	require.True(t, ok)
	assert.Equal(t, backup.RouteID, got.RouteID)
}

func TestActivateDeactivateGuards(t *testing.T) {
	a := newTestAdapter(t)

	assert.ErrorIs(t, a.Activate(), ErrAlreadyActive)

	require.NoError(t, a.Deactivate())
	assert.Equal(t, StatusInactive, a.Status)
	assert.ErrorIs(t, a.Deactivate(), ErrAlreadyInactive)

	require.NoError(t, a.Activate())
	assert.Equal(t, StatusActive, a.Status)
}

func TestUpdateConfiguration(t *testing.T) {
	a := newTestAdapter(t)
	a.DrainEvents()

	require.NoError(t, a.UpdateConfiguration("https://samos.example/v2", "v2", 45, 5))
	assert.Equal(t, "https://samos.example/v2", a.Endpoint)
	assert.Equal(t, 45, a.TimeoutSeconds)

	assert.Error(t, a.UpdateConfiguration("", "v2", 45, 5))
	assert.Error(t, a.UpdateConfiguration("https://x", "v2", 0, 5))

	events := a.DrainEvents()
	require.Len(t, events, 1, "failed updates must not emit events")
}

func TestLogMessageIsAppendOnly(t *testing.T) {
	a := newTestAdapter(t)
	a.DrainEvents()

	entry := a.LogMessage("20250115-PE01-P008-1A2B-0123456789ABCDEF", "pacs.008", "OUTBOUND", `{"x":1}`)
	assert.NotEmpty(t, entry.LogID)
	assert.Len(t, a.MessageLogs, 1)

	events := a.DrainEvents()
	require.Len(t, events, 1)
	logged, ok := events[0].(MessageLogged)
	require.True(t, ok)
	assert.Equal(t, "pacs.008", logged.MessageType)
}
