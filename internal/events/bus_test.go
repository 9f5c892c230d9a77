package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearfab/gateway/internal/clearing"
	"github.com/clearfab/gateway/internal/tenant"
)

func receive(t *testing.T, ch chan *Event) *Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestSubscribeByType(t *testing.T) {
	b := NewBus()
	completed := b.Subscribe("gateway.flow.completed")
	failed := b.Subscribe("gateway.flow.failed")

	b.Emit("gateway.flow.completed", "corr-1", "acme", map[string]interface{}{"uetr": "x"})

	ev := receive(t, completed)
	assert.Equal(t, "gateway.flow.completed", ev.Type)
	assert.Equal(t, "corr-1", ev.Subject)
	assert.Equal(t, "acme", ev.TenantID)
	assert.Equal(t, "1.0", ev.SpecVersion)

	select {
	case <-failed:
		t.Fatal("typed subscription received a foreign event")
	default:
	}
}

func TestSubscribeAll(t *testing.T) {
	b := NewBus()
	all := b.Subscribe()

	b.Emit("gateway.flow.completed", "corr-1", "acme", nil)
	b.Emit("clearing.adapter.created", "adapter-1", "acme", nil)

	assert.Equal(t, "gateway.flow.completed", receive(t, all).Type)
	assert.Equal(t, "clearing.adapter.created", receive(t, all).Type)
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBus()
	b.bufferSize = 1
	slow := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Emit("gateway.flow.completed", "corr", "acme", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
	// the slow subscriber kept at most its buffer; the rest were dropped
	assert.LessOrEqual(t, len(slow), 1)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe("gateway.flow.completed")
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(ch)
	assert.Zero(t, b.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	b.Emit("gateway.flow.completed", "corr", "acme", nil) // must not panic
}

func TestEmitDomainEvents(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe("clearing.adapter.created", "clearing.route.added")

	adapter, err := clearing.NewAdapter(tenant.Context{TenantID: "acme"}, "samos", clearing.NetworkSAMOS, "https://samos.example")
	require.NoError(t, err)
	_, err = adapter.AddRoute("primary", "pacs.008", "BANKB", 1)
	require.NoError(t, err)

	EmitDomainEvents(b, "acme", adapter.DrainEvents())

	created := receive(t, ch)
	assert.Equal(t, "clearing.adapter.created", created.Type)
	assert.Equal(t, adapter.AdapterID, created.Subject)
	assert.Equal(t, "samos", created.Data["name"])

	route := receive(t, ch)
	assert.Equal(t, "clearing.route.added", route.Type)
	assert.Equal(t, "BANKB", route.Data["destination"])
}

func TestEventJSONEnvelope(t *testing.T) {
	ev := NewEvent("gateway.flow.completed", "corr-1", "acme", map[string]interface{}{"uetr": "x"})
	raw, err := ev.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"specversion":"1.0"`)
	assert.Contains(t, string(raw), `"type":"gateway.flow.completed"`)
}
