package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/idempotency"
	"github.com/clearfab/gateway/internal/store"
	"github.com/clearfab/gateway/internal/tenant"
)

type memoryRecords struct {
	records map[string]*store.IdempotencyRecord
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{records: map[string]*store.IdempotencyRecord{}}
}

func (r *memoryRecords) Get(_ context.Context, tenantID, key string) (*store.IdempotencyRecord, error) {
	return r.records[tenantID+"/"+key], nil
}

func (r *memoryRecords) Put(_ context.Context, rec *store.IdempotencyRecord) error {
	k := rec.TenantID + "/" + rec.Key
	if _, exists := r.records[k]; !exists {
		r.records[k] = rec
	}
	return nil
}

func (r *memoryRecords) Delete(_ context.Context, tenantID, key string) error {
	delete(r.records, tenantID+"/"+key)
	return nil
}

func wrapped(gate *idempotency.Gate, handlerCalls *int) http.Handler {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*handlerCalls++
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
	})
	return Idempotency(gate, handler)
}

func keyedRequest(key, body string) *http.Request {
	req := httptest.NewRequest("POST", "/api/v1/payments/pain001", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotency.HeaderKey, key)
	}
	return req.WithContext(tenant.WithTenant(req.Context(), tenant.Context{TenantID: "acme"}))
}

func TestIdempotencyFirstCallProcessesAndRecords(t *testing.T) {
	gate := idempotency.NewGate(newMemoryRecords(), 0)
	calls := 0
	h := wrapped(gate, &calls)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, keyedRequest("key-1", `{"a":1}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, w.Header().Get(idempotency.HeaderReplay))
}

func TestIdempotencyReplaySkipsHandler(t *testing.T) {
	gate := idempotency.NewGate(newMemoryRecords(), 0)
	calls := 0
	h := wrapped(gate, &calls)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, keyedRequest("key-1", `{"a":1}`))
	require.Equal(t, 1, calls)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, keyedRequest("key-1", `{"a":1}`))

	assert.Equal(t, 1, calls, "the handler must not run twice for the same key")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(idempotency.HeaderReplay))
	assert.NotEmpty(t, second.Header().Get(idempotency.HeaderOriginalTime))
	assert.Equal(t, first.Body.String(), second.Body.String(), "the stored response is returned verbatim")
}

func TestIdempotencyConflictRejectedBeforeHandler(t *testing.T) {
	gate := idempotency.NewGate(newMemoryRecords(), 0)
	calls := 0
	h := wrapped(gate, &calls)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, keyedRequest("key-1", `{"a":1}`))
	require.Equal(t, 1, calls)

	conflict := httptest.NewRecorder()
	h.ServeHTTP(conflict, keyedRequest("key-1", `{"a":2}`))

	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, 1, calls)

	var body faults.Body
	require.NoError(t, json.Unmarshal(conflict.Body.Bytes(), &body))
	assert.Equal(t, faults.IdempotencyConflict, body.Kind)
}

func TestIdempotencyUnkeyedRequestsPassThrough(t *testing.T) {
	gate := idempotency.NewGate(newMemoryRecords(), 0)
	calls := 0
	h := wrapped(gate, &calls)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, keyedRequest("", `{"a":1}`))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 2, calls, "unkeyed requests are never deduplicated")
}

func TestIdempotencyIgnoresReads(t *testing.T) {
	gate := idempotency.NewGate(newMemoryRecords(), 0)
	calls := 0
	h := wrapped(gate, &calls)

	req := httptest.NewRequest("GET", "/api/v1/uetr/x/journey", nil)
	req.Header.Set(idempotency.HeaderKey, "key-1")
	req = req.WithContext(tenant.WithTenant(req.Context(), tenant.Context{TenantID: "acme"}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, 1, calls)
	assert.Empty(t, w.Header().Get(idempotency.HeaderReplay))
}

func TestIdempotencyMissingTenantFailsClosed(t *testing.T) {
	gate := idempotency.NewGate(newMemoryRecords(), 0)
	calls := 0
	h := wrapped(gate, &calls)

	req := httptest.NewRequest("POST", "/api/v1/payments/pain001", strings.NewReader(`{}`))
	req.Header.Set(idempotency.HeaderKey, "key-1")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, calls)
}

func TestIdempotencyFailedOutcomeStaysRetryable(t *testing.T) {
	gate := idempotency.NewGate(newMemoryRecords(), 0)
	calls := 0
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	h := Idempotency(gate, failing)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, keyedRequest("key-1", `{"a":1}`))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	}
	assert.Equal(t, 2, calls, "a 5xx outcome is not recorded; the client may retry the same key")
}

func TestTenantMiddlewareInjectsContext(t *testing.T) {
	var seen tenant.Context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = tenant.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Tenant(tenant.NewResolver(nil), handler)

	req := httptest.NewRequest("POST", "/api/v1/payments/pain001", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "acme", seen.TenantID)
}

func TestTenantMiddlewareRejectsMalformedTenant(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a rejected tenant")
	})
	h := Tenant(tenant.NewResolver(nil), handler)

	req := httptest.NewRequest("POST", "/api/v1/payments/pain001", nil)
	req.Header.Set("X-Tenant-ID", "bad tenant!!")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body faults.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, faults.TenantInvalid, body.Kind)
}
