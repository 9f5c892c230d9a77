package clearing

import "time"

// DomainEvent is implemented by every event an adapter aggregate can emit.
// Events accumulate on the aggregate and are drained by the caller after
// each mutation; there is no observer registry.
type DomainEvent interface {
	EventType() string
	Adapter() string
	OccurredAt() time.Time
}

type eventBase struct {
	AdapterID string    `json:"adapter_id"`
	At        time.Time `json:"occurred_at"`
}

func (e eventBase) Adapter() string       { return e.AdapterID }
func (e eventBase) OccurredAt() time.Time { return e.At }

// AdapterCreated is emitted once by the factory.
type AdapterCreated struct {
	eventBase
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Network  string `json:"network"`
	Endpoint string `json:"endpoint"`
}

func (AdapterCreated) EventType() string { return "clearing.adapter.created" }

// RouteAdded is emitted by AddRoute.
type RouteAdded struct {
	eventBase
	RouteID     string `json:"route_id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Priority    int    `json:"priority"`
}

func (RouteAdded) EventType() string { return "clearing.route.added" }

// MessageLogged is emitted by LogMessage.
type MessageLogged struct {
	eventBase
	UETR        string `json:"uetr"`
	MessageType string `json:"message_type"`
	Direction   string `json:"direction"`
}

func (MessageLogged) EventType() string { return "clearing.message.logged" }

// ConfigurationUpdated is emitted by UpdateConfiguration.
type ConfigurationUpdated struct {
	eventBase
	Endpoint       string `json:"endpoint"`
	APIVersion     string `json:"api_version"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	RetryAttempts  int    `json:"retry_attempts"`
}

func (ConfigurationUpdated) EventType() string { return "clearing.adapter.configuration_updated" }

// AdapterActivated is emitted by Activate.
type AdapterActivated struct{ eventBase }

func (AdapterActivated) EventType() string { return "clearing.adapter.activated" }

// AdapterDeactivated is emitted by Deactivate.
type AdapterDeactivated struct{ eventBase }

func (AdapterDeactivated) EventType() string { return "clearing.adapter.deactivated" }
