package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/store"
)

type fakeRecords struct {
	records map[string]*store.IdempotencyRecord
	deletes []string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: map[string]*store.IdempotencyRecord{}}
}

func (r *fakeRecords) Get(_ context.Context, tenantID, key string) (*store.IdempotencyRecord, error) {
	return r.records[tenantID+"/"+key], nil
}

func (r *fakeRecords) Put(_ context.Context, rec *store.IdempotencyRecord) error {
	k := rec.TenantID + "/" + rec.Key
	if _, exists := r.records[k]; !exists {
		r.records[k] = rec
	}
	return nil
}

func (r *fakeRecords) Delete(_ context.Context, tenantID, key string) error {
	k := tenantID + "/" + key
	r.deletes = append(r.deletes, k)
	delete(r.records, k)
	return nil
}

func testGate(repo Records, at time.Time) *Gate {
	g := NewGate(repo, 0)
	g.now = func() time.Time { return at }
	return g
}

var t0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func TestCheckProcessesFreshKey(t *testing.T) {
	g := testGate(newFakeRecords(), t0)

	decision, rec, err := g.Check(context.Background(), "acme", "key-1", "POST", "/api/v1/payments/pain001", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, Process, decision)
	assert.Nil(t, rec)
}

func TestRecordThenReplay(t *testing.T) {
	repo := newFakeRecords()
	g := testGate(repo, t0)
	body := []byte(`{"a":1}`)

	require.NoError(t, g.Record(context.Background(), "acme", "key-1", "POST", "/payments", body, 200, []byte(`{"status":"SUCCESS"}`)))

	decision, rec, err := g.Check(context.Background(), "acme", "key-1", "POST", "/payments", body)
	require.NoError(t, err)
	assert.Equal(t, Replay, decision)
	require.NotNil(t, rec)
	assert.Equal(t, 200, rec.ResponseStatus)
	assert.Equal(t, `{"status":"SUCCESS"}`, string(rec.ResponseBody))
}

func TestCheckConflictOnDifferentRequest(t *testing.T) {
	repo := newFakeRecords()
	g := testGate(repo, t0)

	require.NoError(t, g.Record(context.Background(), "acme", "key-1", "POST", "/payments", []byte(`{"a":1}`), 200, nil))

	_, _, err := g.Check(context.Background(), "acme", "key-1", "POST", "/payments", []byte(`{"a":2}`))
	require.Error(t, err)
	assert.Equal(t, faults.IdempotencyConflict, faults.KindOf(err))
}

func TestCheckExpiredRecordReprocesses(t *testing.T) {
	repo := newFakeRecords()
	g := testGate(repo, t0)
	body := []byte(`{"a":1}`)
	require.NoError(t, g.Record(context.Background(), "acme", "key-1", "POST", "/payments", body, 200, nil))

	later := testGate(repo, t0.Add(25*time.Hour))
	decision, rec, err := later.Check(context.Background(), "acme", "key-1", "POST", "/payments", body)
	require.NoError(t, err)
	assert.Equal(t, Process, decision)
	assert.Nil(t, rec)
	assert.Equal(t, []string{"acme/key-1"}, repo.deletes, "expired records are removed, not replayed")
}

func TestRecordIgnoresFailures(t *testing.T) {
	repo := newFakeRecords()
	g := testGate(repo, t0)

	require.NoError(t, g.Record(context.Background(), "acme", "key-1", "POST", "/payments", []byte(`{}`), 503, nil))
	assert.Empty(t, repo.records, "failed outcomes stay retryable under the same key")

	require.NoError(t, g.Record(context.Background(), "acme", "key-1", "POST", "/payments", []byte(`{}`), 202, nil))
	assert.Len(t, repo.records, 1)
}

func TestKeysAreTenantScoped(t *testing.T) {
	repo := newFakeRecords()
	g := testGate(repo, t0)
	body := []byte(`{"a":1}`)
	require.NoError(t, g.Record(context.Background(), "acme", "key-1", "POST", "/payments", body, 200, nil))

	decision, _, err := g.Check(context.Background(), "other", "key-1", "POST", "/payments", body)
	require.NoError(t, err)
	assert.Equal(t, Process, decision, "another tenant's identical key is independent")
}

func TestHashCoversMethodEndpointAndBody(t *testing.T) {
	base := Hash("POST", "/payments", []byte(`{"a":1}`))
	assert.NotEqual(t, base, Hash("PUT", "/payments", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, Hash("POST", "/refunds", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, Hash("POST", "/payments", []byte(`{"a":2}`)))
	assert.Equal(t, base, Hash("POST", "/payments", []byte(`{"a":1}`)))
	assert.Len(t, base, 64)
}
