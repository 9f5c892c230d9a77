package flow

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearfab/gateway/internal/events"
	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/iso20022"
	"github.com/clearfab/gateway/internal/monitoring"
	"github.com/clearfab/gateway/internal/queue"
	"github.com/clearfab/gateway/internal/resiliency"
	"github.com/clearfab/gateway/internal/routing"
	"github.com/clearfab/gateway/internal/tenant"
	"github.com/clearfab/gateway/internal/transform"
	"github.com/clearfab/gateway/internal/uetr"
)

// Response modes of the client-to-scheme path.
const (
	ResponseImmediate = "IMMEDIATE"
	ResponseAsync     = "ASYNC"
)

// coreBankingService is the in-house service same-bank transfers settle
// against.
const coreBankingService = "core-banking"

// Input is one client-to-scheme submission.
type Input struct {
	Message             iso20022.Message
	MessageType         string
	PaymentType         string
	LocalInstrumentCode string
	ResponseMode        string
}

// RecordStore persists flow records; the store package implements it.
type RecordStore interface {
	Insert(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record) error
	GetAwaitingByUETR(ctx context.Context, uetr string) (*Record, error)
	GetAwaitingByOriginalRefs(ctx context.Context, originalMsgID, transactionID string) (*Record, error)
}

// Dispatcher performs the outbound adapter call once the executor admits it.
type Dispatcher interface {
	Dispatch(ctx context.Context, service string, payload []byte) (map[string]interface{}, error)
}

// QueueStore parks messages when their adapter cannot take them.
type QueueStore interface {
	Enqueue(ctx context.Context, m *queue.Message) error
}

// UETRTracker records every UETR sighting for the journey view.
type UETRTracker interface {
	Track(ctx context.Context, uetr, tenantID, messageType, correlationID, direction string) error
}

// Auditor appends dispatched messages to the owning clearing adapter's
// audit log; the clearing package's audit trail implements it.
type Auditor interface {
	RecordOutbound(ctx context.Context, adapterID, uetr, messageType string, payload []byte) error
}

// Engine orchestrates the message flow end to end.
type Engine struct {
	store       RecordStore
	router      *routing.Router
	transformer *transform.Transformer
	registry    *resiliency.Registry
	dispatcher  Dispatcher
	queue       QueueStore
	correlator  *Correlator
	gen         *uetr.Generator
	tracker     UETRTracker
	auditor     Auditor
	emitter     events.Emitter
	metrics     *monitoring.Metrics
	queueExpiry time.Duration
	logger      *log.Logger
}

// Config wires the engine's collaborators.
type Config struct {
	Store       RecordStore
	Router      *routing.Router
	Transformer *transform.Transformer
	Registry    *resiliency.Registry
	Dispatcher  Dispatcher
	Queue       QueueStore
	Generator   *uetr.Generator
	Tracker     UETRTracker
	Auditor     Auditor
	Emitter     events.Emitter
	Metrics     *monitoring.Metrics
	QueueExpiry time.Duration
}

func NewEngine(cfg Config) *Engine {
	expiry := cfg.QueueExpiry
	if expiry <= 0 {
		expiry = queue.DefaultExpiry
	}
	return &Engine{
		store:       cfg.Store,
		router:      cfg.Router,
		transformer: cfg.Transformer,
		registry:    cfg.Registry,
		dispatcher:  cfg.Dispatcher,
		queue:       cfg.Queue,
		correlator:  NewCorrelator(),
		gen:         cfg.Generator,
		tracker:     cfg.Tracker,
		auditor:     cfg.Auditor,
		emitter:     cfg.Emitter,
		metrics:     cfg.Metrics,
		queueExpiry: expiry,
		logger:      log.New(log.Writer(), "[FLOW] ", log.LstdFlags),
	}
}

// Correlator exposes the in-memory index (the admin API reports its depth).
func (e *Engine) Correlator() *Correlator { return e.correlator }

// Process runs the client-to-scheme algorithm. Faults carry the correlation
// id and UETR so the client can reference the flow in support queries.
func (e *Engine) Process(ctx context.Context, in Input) (*Result, error) {
	if !iso20022.KnownType(in.MessageType) {
		return nil, faults.Newf(faults.ValidationFailed, "unsupported message type %q", in.MessageType)
	}
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	// Step 1: extract or mint the UETR and thread it into the message.
	id := iso20022.ExtractUETR(in.Message, in.MessageType)
	if id == "" {
		id = e.gen.Generate(in.MessageType)
		spec, _ := iso20022.SpecFor(in.MessageType)
		if len(spec.UETRPaths) > 0 {
			_ = in.Message.Set(spec.UETRPaths[0], id)
		}
	}

	// Step 2: open the flow record.
	rec := &Record{
		CorrelationID:       uuid.New().String(),
		UETR:                id,
		TenantID:            tc.TenantID,
		Direction:           DirectionClientToScheme,
		OriginalMessageType: in.MessageType,
		Status:              StatusInitiated,
		OriginalMessageID:   iso20022.MessageID(in.Message, in.MessageType),
		ProcessingStartedAt: time.Now().UTC(),
		Metadata:            map[string]string{},
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	e.track(ctx, rec, in.MessageType)
	defer e.finish(rec, in.MessageType)

	// Step 3: validate. Structural problems are fatal; warnings ride along.
	vr, err := iso20022.Validate(in.Message, in.MessageType)
	if err != nil {
		return nil, e.fail(ctx, rec, err)
	}
	if len(vr.Warnings) > 0 {
		rec.Metadata["validation_warnings"] = strings.Join(vr.Warnings, "; ")
	}

	// Step 4: route.
	decision, err := e.router.Decide(ctx, routeRequest(in))
	if err != nil {
		return nil, e.fail(ctx, rec, err)
	}
	rec.ClearingSystemCode = decision.ClearingSystemCode

	// Step 5: transform into the scheme dialect.
	transformed, transformedType, err := e.transform(in, decision)
	if err != nil {
		e.observeTransform(in.MessageType, transformedType, "failure", 0)
		return nil, e.fail(ctx, rec, err)
	}
	rec.TransformedMessageType = transformedType
	rec.TransactionID = transactionID(transformed, transformedType)
	rec.Status = StatusTransformed
	_ = e.store.Update(ctx, rec)

	// Step 6: dispatch under the protection stack.
	service := decision.ClearingSystemCode
	if decision.RoutingType == routing.TypeSameBank {
		service = coreBankingService
	}
	payload, err := transformed.JSON()
	if err != nil {
		return nil, e.fail(ctx, rec, faults.Wrap(faults.Internal, "failed to encode transformed message", err))
	}

	executor, err := e.registry.Executor(service)
	if err != nil {
		return nil, e.fail(ctx, rec, err)
	}
	rec.Status = StatusDispatched
	_ = e.store.Update(ctx, rec)

	// The record awaits the scheme's answer from here, whether it arrives on
	// this call (IMMEDIATE) or through a later callback (ASYNC).
	rec.Status = StatusAwaitingResponse
	_ = e.store.Update(ctx, rec)

	reply, dispatchErr := executor.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return e.dispatcher.Dispatch(ctx, service, payload)
	}, nil)

	if dispatchErr != nil {
		e.observeDispatch(service, "failure")
		return nil, e.settleFailure(ctx, rec, service, payload, dispatchErr)
	}
	e.observeDispatch(service, "success")
	if e.auditor != nil && decision.AdapterID != "" {
		if err := e.auditor.RecordOutbound(ctx, decision.AdapterID, rec.UETR, transformedType, payload); err != nil {
			e.logger.Printf("audit log failed for %s: %v", rec.CorrelationID, err)
		}
	}

	schemeResponse, _ := reply.(map[string]interface{})

	// Step 7: shape the client response.
	result := &Result{
		MessageID:              rec.OriginalMessageID,
		CorrelationID:          rec.CorrelationID,
		UETR:                   rec.UETR,
		ClearingSystemCode:     rec.ClearingSystemCode,
		TransactionID:          rec.TransactionID,
		TransformedMessage:     transformed,
		ClearingSystemResponse: schemeResponse,
		Metadata:               rec.Metadata,
	}
	now := time.Now().UTC()
	switch in.ResponseMode {
	case ResponseAsync:
		// acknowledge pending; the scheme callback finishes the record
		e.correlator.Register(rec)
		result.Status = StatusAwaitingResponse
		result.ClientResponse = shapePain002(uuid.New().String(), rec.OriginalMessageID,
			in.MessageType, rec.UETR, groupStatusAcceptedPending, now)
	default:
		terminalize(rec, StatusSuccess)
		_ = e.store.Update(ctx, rec)
		result.Status = StatusSuccess
		result.ClientResponse = shapePain002(uuid.New().String(), rec.OriginalMessageID,
			in.MessageType, rec.UETR, groupStatusAccepted, now)
	}
	result.ProcessingTimeMs = rec.ProcessingTimeMs
	e.emit("gateway.flow.completed", rec)
	return result, nil
}

// settleFailure terminalizes a failed dispatch: circuit-open failures fall
// back into the queued-message store (QUEUED), timeouts map to TIMED_OUT,
// everything else to FAILED. The classified fault always reaches the client.
func (e *Engine) settleFailure(ctx context.Context, rec *Record, service string, payload []byte, cause error) error {
	status := StatusFailed
	switch {
	case errors.Is(cause, resiliency.ErrCircuitOpen) && e.queue != nil:
		now := time.Now().UTC()
		qm := &queue.Message{
			MessageID:    uuid.New().String(),
			TenantID:     rec.TenantID,
			ServiceName:  service,
			Payload:      payload,
			Status:       queue.StatusPending,
			NextRetryAt:  now,
			ExpiresAt:    now.Add(e.queueExpiry),
			ErrorMessage: cause.Error(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := e.queue.Enqueue(ctx, qm); err != nil {
			e.logger.Printf("queue fallback failed for %s: %v", rec.CorrelationID, err)
		} else {
			status = StatusQueued
			rec.Metadata["queued_message_id"] = qm.MessageID
		}
	case faults.KindOf(cause) == faults.Timeout:
		status = StatusTimedOut
	}
	terminalize(rec, status)
	_ = e.store.Update(ctx, rec)
	e.emit("gateway.flow.failed", rec)

	var f *faults.Fault
	if errors.As(cause, &f) {
		return f.WithCorrelation(rec.CorrelationID, rec.UETR)
	}
	return cause
}

// fail terminalizes the record as FAILED and stamps flow identifiers onto
// the fault.
func (e *Engine) fail(ctx context.Context, rec *Record, cause error) error {
	terminalize(rec, StatusFailed)
	_ = e.store.Update(ctx, rec)
	e.emit("gateway.flow.failed", rec)

	var f *faults.Fault
	if errors.As(cause, &f) {
		return f.WithCorrelation(rec.CorrelationID, rec.UETR)
	}
	return cause
}

// transform picks the dialect conversion for the routing decision. Same-bank
// payments stay in the internal JSON dialect untouched.
func (e *Engine) transform(in Input, decision *routing.PaymentRouting) (iso20022.Message, string, error) {
	if decision.RoutingType == routing.TypeSameBank {
		return in.Message.Clone(), in.MessageType, nil
	}
	started := time.Now()
	var out iso20022.Message
	var outType string
	var err error
	switch in.MessageType {
	case iso20022.Pain001:
		outType = iso20022.Pacs008
		out, err = e.transformer.Pain001ToPacs008(in.Message, in.PaymentType, in.LocalInstrumentCode)
	case iso20022.Pain007:
		outType = iso20022.Pacs007
		out, err = e.transformer.Pain007ToPacs007(in.Message)
	case iso20022.Camt055:
		outType = iso20022.Pacs007
		out, err = e.transformer.Camt055ToPacs007(in.Message)
	case iso20022.Camt056:
		outType = iso20022.Pacs028
		out, err = e.transformer.Camt056ToPacs028(in.Message)
	case iso20022.Pacs008, iso20022.Pacs028:
		// already in the scheme dialect
		out, outType = in.Message.Clone(), in.MessageType
	default:
		return nil, "", faults.Newf(faults.TransformationRequired,
			"no scheme dialect mapping for %s", in.MessageType)
	}
	if err != nil {
		return nil, outType, err
	}
	e.observeTransform(in.MessageType, outType, "success", time.Since(started))
	return out, outType, nil
}

func routeRequest(in Input) routing.RouteRequest {
	req := routing.RouteRequest{
		PaymentType:         in.PaymentType,
		LocalInstrumentCode: in.LocalInstrumentCode,
	}
	if in.MessageType == iso20022.Pain001 {
		req.FromAccount = accountAt(in.Message,
			"CstmrCdtTrfInitn/PmtInf[0]/DbtrAcct",
			"CstmrCdtTrfInitn/PmtInf[0]/DbtrAgt/FinInstnId/ClrSysMmbId/MmbId")
		req.ToAccount = accountAt(in.Message,
			"CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/CdtrAcct",
			"CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/CdtrAgt/FinInstnId/ClrSysMmbId/MmbId")
	}
	return req
}

// accountAt reads an account block: explicit member id wins as the bank
// code, else the IBAN's bank segment (positions 5-8).
func accountAt(m iso20022.Message, acctPath, agentPath string) *routing.Account {
	iban := m.GetString(acctPath + "/Id/IBAN")
	number := m.GetString(acctPath + "/Id/Othr/Id")
	if number == "" {
		number = iban
	}
	bank := m.GetString(agentPath)
	if bank == "" && len(iban) >= 8 {
		bank = iban[4:8]
	}
	if number == "" && bank == "" {
		return nil
	}
	return &routing.Account{AccountNumber: number, BankCode: bank}
}

// transactionID pulls the scheme-side transaction id from the transformed
// message when the dialect carries one.
func transactionID(m iso20022.Message, messageType string) string {
	switch messageType {
	case iso20022.Pacs008:
		if v := m.GetString("FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/TxId"); v != "" {
			return v
		}
		return m.GetString("FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/EndToEndId")
	case iso20022.Pacs007:
		return m.GetString("FIToFIPmtRvsl/TxInf[0]/OrgnlEndToEndId")
	case iso20022.Pacs028:
		return m.GetString("FIToFIPmtStsReq/TxInf[0]/OrgnlTxId")
	}
	return ""
}

func (e *Engine) track(ctx context.Context, rec *Record, messageType string) {
	if e.tracker == nil {
		return
	}
	if err := e.tracker.Track(ctx, rec.UETR, rec.TenantID, messageType, rec.CorrelationID, rec.Direction); err != nil {
		e.logger.Printf("uetr tracking failed for %s: %v", rec.UETR, err)
	}
}

func (e *Engine) emit(eventType string, rec *Record) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(eventType, rec.CorrelationID, rec.TenantID, map[string]interface{}{
		"uetr":           rec.UETR,
		"status":         rec.Status,
		"direction":      rec.Direction,
		"messageType":    rec.OriginalMessageType,
		"clearingSystem": rec.ClearingSystemCode,
	})
}

// finish records flow metrics and evicts terminal records from the
// correlator. It runs on every exit path.
func (e *Engine) finish(rec *Record, messageType string) {
	if TerminalStatus(rec.Status) {
		e.correlator.Evict(rec)
	}
	if e.metrics == nil {
		return
	}
	e.metrics.FlowsTotal.WithLabelValues(rec.TenantID, rec.Direction, rec.Status).Inc()
	if rec.ProcessingTimeMs > 0 {
		e.metrics.FlowDuration.WithLabelValues(messageType).
			Observe(float64(rec.ProcessingTimeMs) / 1000)
	}
}

func (e *Engine) observeTransform(src, dst, result string, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.TransformTotal.WithLabelValues(src, dst, result).Inc()
	if d > 0 {
		e.metrics.TransformDuration.WithLabelValues(src).Observe(d.Seconds())
	}
}

func (e *Engine) observeDispatch(service, outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.DispatchTotal.WithLabelValues(service, outcome).Inc()
}
