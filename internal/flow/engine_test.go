package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfab/gateway/internal/clearing"
	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/iso20022"
	"github.com/clearfab/gateway/internal/queue"
	"github.com/clearfab/gateway/internal/resiliency"
	"github.com/clearfab/gateway/internal/routing"
	"github.com/clearfab/gateway/internal/tenant"
	"github.com/clearfab/gateway/internal/transform"
	"github.com/clearfab/gateway/internal/uetr"
)

// ============================================================
// Fakes
// ============================================================

type fakeRecordStore struct {
	mu       sync.Mutex
	records  map[string]*Record // correlation id -> latest state
	order    []string
	statuses []string // every persisted status, in write order
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: map[string]*Record{}}
}

func (s *fakeRecordStore) Insert(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.CorrelationID] = r
	s.order = append(s.order, r.CorrelationID)
	s.statuses = append(s.statuses, r.Status)
	return nil
}

func (s *fakeRecordStore) Update(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.CorrelationID] = r
	s.statuses = append(s.statuses, r.Status)
	return nil
}

func (s *fakeRecordStore) GetAwaitingByUETR(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.UETR == id && r.Status == StatusAwaitingResponse {
			return r, nil
		}
	}
	return nil, nil
}

func (s *fakeRecordStore) GetAwaitingByOriginalRefs(_ context.Context, msgID, txID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.OriginalMessageID == msgID && r.TransactionID == txID && r.Status == StatusAwaitingResponse {
			return r, nil
		}
	}
	return nil, nil
}

func (s *fakeRecordStore) byIndex(i int) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[s.order[i]]
}

type fakeDispatcher struct {
	mu       sync.Mutex
	calls    []string // service names in call order
	payloads [][]byte
	reply    map[string]interface{}
	err      error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, service string, payload []byte) (map[string]interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, service)
	d.payloads = append(d.payloads, payload)
	if d.err != nil {
		return nil, d.err
	}
	if d.reply != nil {
		return d.reply, nil
	}
	return map[string]interface{}{"status": "ACCEPTED"}, nil
}

type fakeQueueStore struct {
	mu       sync.Mutex
	messages []*queue.Message
}

func (q *fakeQueueStore) Enqueue(_ context.Context, m *queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, m)
	return nil
}

type fakeTracker struct {
	mu        sync.Mutex
	sightings []string // uetr:direction
}

func (tr *fakeTracker) Track(_ context.Context, id, _, _, _, direction string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sightings = append(tr.sightings, id+":"+direction)
	return nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []string // adapterID:uetr:messageType
}

func (a *fakeAuditor) RecordOutbound(_ context.Context, adapterID, id, messageType string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, adapterID+":"+id+":"+messageType)
	return nil
}

type fakeAdapterSource struct {
	adapters []*clearing.Adapter
}

func (s *fakeAdapterSource) ListActiveByTenant(_ context.Context, _ tenant.Context) ([]*clearing.Adapter, error) {
	return s.adapters, nil
}

// ============================================================
// Harness
// ============================================================

type harness struct {
	engine     *Engine
	store      *fakeRecordStore
	dispatcher *fakeDispatcher
	queue      *fakeQueueStore
	tracker    *fakeTracker
	auditor    *fakeAuditor
	registry   *resiliency.Registry
}

func fastTestPolicy() resiliency.Policy {
	p := resiliency.DefaultPolicy()
	p.Retry.MaxAttempts = 1
	p.CircuitBreaker.MinimumNumberOfCalls = 2
	p.CircuitBreaker.SlidingWindowSize = 4
	p.CircuitBreaker.WaitDurationInOpen = time.Hour
	p.TimeLimiter.Timeout = time.Second
	return p
}

func newHarness(t *testing.T, adapters ...*clearing.Adapter) *harness {
	t.Helper()
	store := newFakeRecordStore()
	dispatcher := &fakeDispatcher{}
	qs := &fakeQueueStore{}
	tracker := &fakeTracker{}
	auditor := &fakeAuditor{}
	registry := resiliency.NewRegistry(nil)
	registry.Configure(coreBankingService, fastTestPolicy())
	gen := uetr.NewGenerator("GW01")

	engine := NewEngine(Config{
		Store:       store,
		Router:      routing.NewRouter(&fakeAdapterSource{adapters: adapters}),
		Transformer: transform.NewTransformer(gen),
		Registry:    registry,
		Dispatcher:  dispatcher,
		Queue:       qs,
		Generator:   gen,
		Tracker:     tracker,
		Auditor:     auditor,
	})
	return &harness{engine: engine, store: store, dispatcher: dispatcher, queue: qs, tracker: tracker, auditor: auditor, registry: registry}
}

func testCtx() context.Context {
	return tenant.WithTenant(context.Background(), tenant.Context{TenantID: "acme"})
}

func sameBankPain001(t *testing.T) iso20022.Message {
	t.Helper()
	m, err := iso20022.Parse([]byte(`{
		"CstmrCdtTrfInitn": {
			"GrpHdr": {"MsgId": "CUST-MSG-1"},
			"PmtInf": [{
				"Dbtr": {"Nm": "Alice"},
				"DbtrAcct": {"Id": {"IBAN": "GB29NWBK60161331926819"}},
				"CdtTrfTxInf": [{
					"PmtId": {"EndToEndId": "E2E-1"},
					"Amt": {"InstdAmt": {"Ccy": "GBP", "Value": "100.00"}},
					"Cdtr": {"Nm": "Bob"},
					"CdtrAcct": {"Id": {"IBAN": "GB29NWBK60161331926820"}}
				}]
			}]
		}
	}`))
	require.NoError(t, err)
	return m
}

func otherBankPain001(t *testing.T) iso20022.Message {
	t.Helper()
	m := sameBankPain001(t)
	require.NoError(t, m.Set("CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/CdtrAcct/Id/IBAN", "ZA12ABSA40000012345678"))
	return m
}

func rtcAdapter(t *testing.T) *clearing.Adapter {
	t.Helper()
	a, err := clearing.NewAdapter(tenant.Context{TenantID: "acme"}, "rtc-primary", clearing.NetworkRTC, "https://rtc.example")
	require.NoError(t, err)
	_, err = a.AddRoute("rtc-absa", "RTC", "ABSA", 1)
	require.NoError(t, err)
	a.DrainEvents()
	return a
}

// ============================================================
// Client-to-scheme
// ============================================================

func TestProcessSameBankHappyPath(t *testing.T) {
	h := newHarness(t)

	result, err := h.engine.Process(testCtx(), Input{
		Message:      sameBankPain001(t),
		MessageType:  iso20022.Pain001,
		ResponseMode: ResponseImmediate,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	require.True(t, uetr.Validate(result.UETR), "a missing reference is minted at ingress")

	require.Len(t, h.dispatcher.calls, 1)
	assert.Equal(t, coreBankingService, h.dispatcher.calls[0],
		"same-bank transfers settle against core banking")

	pain002 := iso20022.Message(result.ClientResponse)
	assert.Equal(t, "ACCP", pain002.GetString("CstmrPmtStsRpt/OrgnlGrpInfAndSts/GrpSts"))
	assert.Equal(t, "CUST-MSG-1", pain002.GetString("CstmrPmtStsRpt/OrgnlGrpInfAndSts/OrgnlMsgId"))
	assert.Equal(t, result.UETR,
		pain002.GetString("CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/OrgnlUETR"))

	rec := h.store.byIndex(0)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, "acme", rec.TenantID)
	assert.NotNil(t, rec.ProcessingCompletedAt)

	require.Len(t, h.tracker.sightings, 1)
	assert.Equal(t, result.UETR+":"+DirectionClientToScheme, h.tracker.sightings[0])
}

func TestProcessPreservesSuppliedUETR(t *testing.T) {
	h := newHarness(t)
	supplied := "20250115-PE01-N001-1A2B-0123456789ABCDEF"
	msg := sameBankPain001(t)
	require.NoError(t, msg.Set("CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/PmtId/UETR", supplied))

	result, err := h.engine.Process(testCtx(), Input{
		Message:     msg,
		MessageType: iso20022.Pain001,
	})
	require.NoError(t, err)
	assert.Equal(t, supplied, result.UETR, "a well-formed supplied reference is preserved")
}

func TestProcessOtherBankTransformsAndRoutes(t *testing.T) {
	h := newHarness(t, rtcAdapter(t))

	result, err := h.engine.Process(testCtx(), Input{
		Message:     otherBankPain001(t),
		MessageType: iso20022.Pain001,
		PaymentType: "RTC",
	})
	require.NoError(t, err)

	assert.Equal(t, "rtc-primary", result.ClearingSystemCode)
	require.Len(t, h.dispatcher.calls, 1)
	assert.Equal(t, "rtc-primary", h.dispatcher.calls[0])

	transformed := iso20022.Message(result.TransformedMessage)
	assert.Equal(t, result.UETR,
		transformed.GetString("FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/UETR"),
		"the reference survives the dialect transformation verbatim")
	assert.Equal(t, "E2E-1", result.TransactionID)

	rec := h.store.byIndex(0)
	assert.Equal(t, iso20022.Pacs008, rec.TransformedMessageType)
}

func TestProcessOtherBankRecordsAuditLog(t *testing.T) {
	adapter := rtcAdapter(t)
	h := newHarness(t, adapter)

	result, err := h.engine.Process(testCtx(), Input{
		Message:     otherBankPain001(t),
		MessageType: iso20022.Pain001,
		PaymentType: "RTC",
	})
	require.NoError(t, err)

	require.Len(t, h.auditor.entries, 1, "every inter-bank dispatch lands in the adapter's audit log")
	assert.Equal(t, adapter.AdapterID+":"+result.UETR+":"+iso20022.Pacs008, h.auditor.entries[0])
}

func TestProcessSameBankSkipsAuditLog(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Process(testCtx(), Input{
		Message:     sameBankPain001(t),
		MessageType: iso20022.Pain001,
	})
	require.NoError(t, err)
	assert.Empty(t, h.auditor.entries, "in-house settlement has no clearing adapter to log against")
}

func TestProcessImmediateStatusProgression(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Process(testCtx(), Input{
		Message:      sameBankPain001(t),
		MessageType:  iso20022.Pain001,
		ResponseMode: ResponseImmediate,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		StatusInitiated,
		StatusTransformed,
		StatusDispatched,
		StatusAwaitingResponse,
		StatusSuccess,
	}, h.store.statuses, "the record passes AWAITING_RESPONSE even when the answer arrives on the same call")
}

func TestProcessAsyncAwaitsCallback(t *testing.T) {
	h := newHarness(t, rtcAdapter(t))

	result, err := h.engine.Process(testCtx(), Input{
		Message:      otherBankPain001(t),
		MessageType:  iso20022.Pain001,
		PaymentType:  "RTC",
		ResponseMode: ResponseAsync,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusAwaitingResponse, result.Status)
	pain002 := iso20022.Message(result.ClientResponse)
	assert.Equal(t, "ACTC", pain002.GetString("CstmrPmtStsRpt/OrgnlGrpInfAndSts/GrpSts"),
		"async acknowledgement is accepted-pending, not accepted")

	assert.Equal(t, 1, h.engine.Correlator().Pending())
	rec := h.store.byIndex(0)
	assert.Equal(t, StatusAwaitingResponse, rec.Status)
	assert.Nil(t, rec.ProcessingCompletedAt, "awaiting records are not terminal")
}

func TestProcessNoRouteFailsFlow(t *testing.T) {
	h := newHarness(t) // no adapters configured

	_, err := h.engine.Process(testCtx(), Input{
		Message:     otherBankPain001(t),
		MessageType: iso20022.Pain001,
		PaymentType: "RTC",
	})
	require.Error(t, err)
	assert.Equal(t, faults.NoRouteAvailable, faults.KindOf(err))

	rec := h.store.byIndex(0)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Empty(t, h.dispatcher.calls)

	var f *faults.Fault
	require.True(t, errors.As(err, &f))
	assert.Equal(t, rec.CorrelationID, f.CorrelationID, "the fault names the flow for support queries")
}

func TestProcessValidationFailure(t *testing.T) {
	h := newHarness(t)
	msg := sameBankPain001(t)
	root := msg["CstmrCdtTrfInitn"].(map[string]interface{})
	delete(root, "GrpHdr")

	_, err := h.engine.Process(testCtx(), Input{
		Message:     msg,
		MessageType: iso20022.Pain001,
	})
	require.Error(t, err)
	assert.Equal(t, faults.ValidationFailed, faults.KindOf(err))
	assert.Equal(t, StatusFailed, h.store.byIndex(0).Status)
}

func TestProcessUnknownTypeRejectedBeforeAnyRecord(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Process(testCtx(), Input{
		Message:     iso20022.Message{},
		MessageType: "pain.999",
	})
	require.Error(t, err)
	assert.Equal(t, faults.ValidationFailed, faults.KindOf(err))
	assert.Empty(t, h.store.order)
}

func TestProcessRequiresTenant(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Process(context.Background(), Input{
		Message:     sameBankPain001(t),
		MessageType: iso20022.Pain001,
	})
	assert.Error(t, err)
}

// ============================================================
// Queue fallback
// ============================================================

func TestProcessCircuitOpenQueuesMessage(t *testing.T) {
	h := newHarness(t)

	// Trip the core-banking breaker before submitting.
	executor, err := h.registry.Executor(coreBankingService)
	require.NoError(t, err)
	failing := func(ctx context.Context) (interface{}, error) {
		return nil, &resiliency.HTTPStatusError{StatusCode: 500}
	}
	for i := 0; i < 2; i++ {
		_, _ = executor.Execute(context.Background(), failing, nil)
	}
	require.Equal(t, resiliency.StateOpen, executor.Breaker().State())

	_, err = h.engine.Process(testCtx(), Input{
		Message:     sameBankPain001(t),
		MessageType: iso20022.Pain001,
	})
	require.Error(t, err)
	assert.Equal(t, faults.AdapterUnavailable, faults.KindOf(err))
	assert.ErrorIs(t, err, resiliency.ErrCircuitOpen)

	require.Len(t, h.queue.messages, 1, "the rejected dispatch parks in the queue")
	qm := h.queue.messages[0]
	assert.Equal(t, coreBankingService, qm.ServiceName)
	assert.Equal(t, queue.StatusPending, qm.Status)
	assert.Equal(t, "acme", qm.TenantID)
	assert.NotEmpty(t, qm.Payload)

	rec := h.store.byIndex(0)
	assert.Equal(t, StatusQueued, rec.Status)
	assert.Equal(t, qm.MessageID, rec.Metadata["queued_message_id"])
	assert.Empty(t, h.dispatcher.calls, "an open circuit never reaches the adapter")
}

func TestProcessTimeoutMarksTimedOut(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = faults.New(faults.Timeout, "adapter did not answer")

	_, err := h.engine.Process(testCtx(), Input{
		Message:     sameBankPain001(t),
		MessageType: iso20022.Pain001,
	})
	require.Error(t, err)
	assert.Equal(t, faults.Timeout, faults.KindOf(err))
	assert.Equal(t, StatusTimedOut, h.store.byIndex(0).Status)
	assert.Empty(t, h.queue.messages, "only circuit-open failures queue")
}

// ============================================================
// Resubmission
// ============================================================

func TestResubmitDispatchesQueuedPayload(t *testing.T) {
	h := newHarness(t)

	err := h.engine.Resubmit(context.Background(), &queue.Message{
		MessageID:   "qm-1",
		TenantID:    "acme",
		ServiceName: coreBankingService,
		Payload:     []byte(`{"FIToFICstmrCdtTrf":{}}`),
	})
	require.NoError(t, err)
	require.Len(t, h.dispatcher.calls, 1)
	assert.Equal(t, coreBankingService, h.dispatcher.calls[0])
}
