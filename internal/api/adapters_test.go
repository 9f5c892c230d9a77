package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfab/gateway/internal/clearing"
	"github.com/clearfab/gateway/internal/events"
	"github.com/clearfab/gateway/internal/tenant"
)

// ============================================================
// Fakes
// ============================================================

type fakeAdapterAdmin struct {
	adapters map[string]*clearing.Adapter
	logs     map[string][]clearing.MessageLog
	saves    int
}

func newFakeAdapterAdmin() *fakeAdapterAdmin {
	return &fakeAdapterAdmin{
		adapters: map[string]*clearing.Adapter{},
		logs:     map[string][]clearing.MessageLog{},
	}
}

func (f *fakeAdapterAdmin) Save(_ context.Context, a *clearing.Adapter) error {
	f.adapters[a.AdapterID] = a
	f.saves++
	return nil
}

func (f *fakeAdapterAdmin) Get(_ context.Context, adapterID string) (*clearing.Adapter, error) {
	return f.adapters[adapterID], nil
}

func (f *fakeAdapterAdmin) ListMessageLogs(_ context.Context, adapterID string, _ int) ([]clearing.MessageLog, error) {
	return f.logs[adapterID], nil
}

// ============================================================
// Harness
// ============================================================

func newAdminServer(admin *fakeAdapterAdmin) (*Server, *events.Bus) {
	bus := events.NewBus()
	s := NewServer(Deps{
		Resolver: tenant.NewResolver(nil),
		Bus:      bus,
		Adapters: admin,
	})
	return s, bus
}

func adminRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "acme")
	return req
}

func seedAdapter(t *testing.T, admin *fakeAdapterAdmin, tenantID string) *clearing.Adapter {
	t.Helper()
	a, err := clearing.NewAdapter(tenant.Context{TenantID: tenantID}, "samos", clearing.NetworkSAMOS, "https://samos.example")
	require.NoError(t, err)
	a.DrainEvents()
	admin.adapters[a.AdapterID] = a
	return a
}

func awaitEvent(t *testing.T, ch chan *events.Event) *events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return nil
	}
}

// ============================================================
// Adapter management
// ============================================================

func TestCreateAdapter(t *testing.T) {
	admin := newFakeAdapterAdmin()
	s, bus := newAdminServer(admin)
	created := bus.Subscribe("clearing.adapter.created")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, adminRequest("POST", "/admin/adapters",
		`{"name":"samos","network":"SAMOS","endpoint":"https://samos.example"}`))

	require.Equal(t, http.StatusCreated, w.Code)
	var a clearing.Adapter
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, clearing.StatusActive, a.Status)
	assert.Equal(t, "acme", a.Tenant.TenantID)

	require.Len(t, admin.adapters, 1, "the aggregate is persisted")

	ev := awaitEvent(t, created)
	assert.Equal(t, a.AdapterID, ev.Subject)
	assert.Equal(t, "acme", ev.TenantID)
}

func TestCreateAdapterRejectsBlankName(t *testing.T) {
	admin := newFakeAdapterAdmin()
	s, _ := newAdminServer(admin)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, adminRequest("POST", "/admin/adapters",
		`{"network":"SAMOS","endpoint":"https://samos.example"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, admin.adapters)
}

func TestAddRoutePersistsAndPublishes(t *testing.T) {
	admin := newFakeAdapterAdmin()
	s, bus := newAdminServer(admin)
	a := seedAdapter(t, admin, "acme")
	added := bus.Subscribe("clearing.route.added")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, adminRequest("POST", "/admin/adapters/"+a.AdapterID+"/routes",
		`{"name":"samos-absa","source":"RTC","destination":"ABSA","priority":1}`))

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, a.Routes, 1)
	assert.Equal(t, "ABSA", a.Routes[0].Destination)
	assert.Equal(t, 1, admin.saves)

	ev := awaitEvent(t, added)
	assert.Equal(t, "ABSA", ev.Data["destination"])
}

func TestActivateActiveAdapterConflicts(t *testing.T) {
	admin := newFakeAdapterAdmin()
	s, _ := newAdminServer(admin)
	a := seedAdapter(t, admin, "acme")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, adminRequest("POST", "/admin/adapters/"+a.AdapterID+"/activate", ""))

	assert.Equal(t, http.StatusConflict, w.Code, "a repeated activation is a conflict, never a silent no-op")
	assert.Zero(t, admin.saves)
}

func TestDeactivateAdapter(t *testing.T) {
	admin := newFakeAdapterAdmin()
	s, bus := newAdminServer(admin)
	a := seedAdapter(t, admin, "acme")
	deactivated := bus.Subscribe("clearing.adapter.deactivated")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, adminRequest("POST", "/admin/adapters/"+a.AdapterID+"/deactivate", ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, clearing.StatusInactive, a.Status)
	awaitEvent(t, deactivated)
}

func TestUpdateAdapterConfiguration(t *testing.T) {
	admin := newFakeAdapterAdmin()
	s, _ := newAdminServer(admin)
	a := seedAdapter(t, admin, "acme")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, adminRequest("PUT", "/admin/adapters/"+a.AdapterID+"/configuration",
		`{"endpoint":"https://samos-v2.example","apiVersion":"v2","timeoutSeconds":45,"retryAttempts":5}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://samos-v2.example", a.Endpoint)
	assert.Equal(t, 45, a.TimeoutSeconds)
}

func TestUpdateAdapterConfigurationRejectsBlankEndpoint(t *testing.T) {
	admin := newFakeAdapterAdmin()
	s, _ := newAdminServer(admin)
	a := seedAdapter(t, admin, "acme")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, adminRequest("PUT", "/admin/adapters/"+a.AdapterID+"/configuration",
		`{"endpoint":"","timeoutSeconds":45}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "https://samos.example", a.Endpoint, "a rejected update leaves the adapter untouched")
}

func TestAdapterLogsListing(t *testing.T) {
	admin := newFakeAdapterAdmin()
	s, _ := newAdminServer(admin)
	a := seedAdapter(t, admin, "acme")
	admin.logs[a.AdapterID] = []clearing.MessageLog{
		{LogID: "log-1", AdapterID: a.AdapterID, UETR: "u-1", MessageType: "pacs.008", Direction: clearing.DirectionOutbound},
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, adminRequest("GET", "/admin/adapters/"+a.AdapterID+"/logs", ""))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		AdapterID string                `json:"adapterId"`
		Logs      []clearing.MessageLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, clearing.DirectionOutbound, body.Logs[0].Direction)
}

func TestForeignTenantAdapterReadsAbsent(t *testing.T) {
	admin := newFakeAdapterAdmin()
	s, _ := newAdminServer(admin)
	a := seedAdapter(t, admin, "other-bank")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, adminRequest("GET", "/admin/adapters/"+a.AdapterID+"/logs", ""))

	assert.Equal(t, http.StatusNotFound, w.Code, "another tenant's adapter must not leak")
}
