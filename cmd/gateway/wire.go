package main

import (
	"context"
	"time"

	"github.com/clearfab/gateway/internal/clearing"
	"github.com/clearfab/gateway/internal/events"
	"github.com/clearfab/gateway/internal/routing"
	"github.com/clearfab/gateway/internal/store"
	"github.com/clearfab/gateway/internal/transform"
	"github.com/clearfab/gateway/internal/uetr"
)

func newRouter(db *store.Store) *routing.Router {
	return routing.NewRouter(db.Clearing)
}

func newTransformer(gen *uetr.Generator) *transform.Transformer {
	return transform.NewTransformer(gen)
}

// uetrTracker adapts the UETR repository to the flow engine's tracker
// contract.
type uetrTracker struct {
	repo *store.UETRRepo
}

func (t uetrTracker) Track(ctx context.Context, id, tenantID, messageType, correlationID, direction string) error {
	return t.repo.Track(ctx, &store.UETRTracking{
		UETR:          id,
		TenantID:      tenantID,
		MessageType:   messageType,
		CorrelationID: correlationID,
		Direction:     direction,
		ObservedAt:    time.Now().UTC(),
	})
}

// domainEventPublisher adapts the event plane to the clearing package's
// publisher contract.
type domainEventPublisher struct {
	emitter events.Emitter
}

func (p domainEventPublisher) PublishDomainEvents(tenantID string, drained []clearing.DomainEvent) {
	events.EmitDomainEvents(p.emitter, tenantID, drained)
}
