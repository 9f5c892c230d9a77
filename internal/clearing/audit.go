package clearing

import (
	"context"
	"fmt"
	"log"
)

// Message-log directions.
const (
	DirectionOutbound = "OUTBOUND"
	DirectionInbound  = "INBOUND"
)

// AuditStore is the slice of the repository the audit trail needs: load one
// aggregate, persist it back.
type AuditStore interface {
	Get(ctx context.Context, adapterID string) (*Adapter, error)
	Save(ctx context.Context, a *Adapter) error
}

// EventPublisher forwards drained domain events to the event plane. The
// wiring layer adapts the gateway's bus to it.
type EventPublisher interface {
	PublishDomainEvents(tenantID string, drained []DomainEvent)
}

// AuditTrail appends dispatched messages to the owning adapter's append-only
// log through the aggregate, so every entry also yields a MessageLogged
// domain event.
type AuditTrail struct {
	store  AuditStore
	events EventPublisher
	logger *log.Logger
}

func NewAuditTrail(store AuditStore, events EventPublisher) *AuditTrail {
	return &AuditTrail{
		store:  store,
		events: events,
		logger: log.New(log.Writer(), "[CLEARING] ", log.LstdFlags),
	}
}

// RecordOutbound logs one dispatched message against its adapter. The entry
// is written through the aggregate and persisted before the event goes out.
func (t *AuditTrail) RecordOutbound(ctx context.Context, adapterID, uetrRef, messageType string, payload []byte) error {
	a, err := t.store.Get(ctx, adapterID)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("adapter %s not found for audit entry", adapterID)
	}
	a.LogMessage(uetrRef, messageType, DirectionOutbound, string(payload))
	if err := t.store.Save(ctx, a); err != nil {
		return err
	}
	if t.events != nil {
		t.events.PublishDomainEvents(a.Tenant.TenantID, a.DrainEvents())
	}
	return nil
}
