// Package clearing holds the clearing-adapter aggregate: the per-tenant
// configured outbound target for one scheme (SAMOS, BankservAfrica, RTC,
// PayShap, SWIFT, ...), its routes, its append-only message log, and the
// domain events its mutations emit.
package clearing

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clearfab/gateway/internal/tenant"
)

// Status of an adapter.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Known scheme networks. The set is open; these are the ones the gateway
// ships routing defaults for.
const (
	NetworkSAMOS    = "SAMOS"
	NetworkBankserv = "BANKSERV"
	NetworkRTC      = "RTC"
	NetworkPayShap  = "PAYSHAP"
	NetworkSWIFT    = "SWIFT"
)

var (
	ErrAlreadyActive   = errors.New("adapter already active")
	ErrAlreadyInactive = errors.New("adapter already inactive")
)

// Route is a prioritized path through an adapter. Priority is a total order;
// ties break on the smaller route id.
type Route struct {
	RouteID     string `json:"route_id"`
	AdapterID   string `json:"adapter_id"`
	Name        string `json:"name"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Priority    int    `json:"priority"`
	Status      string `json:"status"`
}

// MessageLog is one append-only entry in the adapter's outbound audit log.
type MessageLog struct {
	LogID       string    `json:"log_id"`
	AdapterID   string    `json:"adapter_id"`
	UETR        string    `json:"uetr"`
	MessageType string    `json:"message_type"`
	Direction   string    `json:"direction"`
	Payload     string    `json:"payload"`
	LoggedAt    time.Time `json:"logged_at"`
}

// Adapter is the aggregate root. All mutation goes through the named intents
// below; each appends a typed domain event that the caller drains.
type Adapter struct {
	AdapterID         string         `json:"adapter_id"`
	Tenant            tenant.Context `json:"tenant"`
	Name              string         `json:"name"`
	Network           string         `json:"network"`
	Status            string         `json:"status"`
	Endpoint          string         `json:"endpoint"`
	APIVersion        string         `json:"api_version"`
	TimeoutSeconds    int            `json:"timeout_seconds"`
	RetryAttempts     int            `json:"retry_attempts"`
	EncryptionEnabled bool           `json:"encryption_enabled"`
	Routes            []Route        `json:"routes"`
	MessageLogs       []MessageLog   `json:"message_logs"`

	pending []DomainEvent
}

// NewAdapter is the factory. Name and endpoint must be non-blank; the fresh
// aggregate starts ACTIVE and carries an AdapterCreated event.
func NewAdapter(tc tenant.Context, name, network, endpoint string) (*Adapter, error) {
	if name == "" {
		return nil, errors.New("adapter name must not be blank")
	}
	if endpoint == "" {
		return nil, errors.New("adapter endpoint must not be blank")
	}
	a := &Adapter{
		AdapterID:      uuid.NewString(),
		Tenant:         tc,
		Name:           name,
		Network:        network,
		Status:         StatusActive,
		Endpoint:       endpoint,
		TimeoutSeconds: 30,
		RetryAttempts:  3,
	}
	a.record(AdapterCreated{
		eventBase: a.base(),
		TenantID:  tc.TenantID,
		Name:      name,
		Network:   network,
		Endpoint:  endpoint,
	})
	return a, nil
}

func (a *Adapter) base() eventBase {
	return eventBase{AdapterID: a.AdapterID, At: time.Now().UTC()}
}

func (a *Adapter) record(ev DomainEvent) {
	a.pending = append(a.pending, ev)
}

// DrainEvents hands the pending events to the caller exactly once.
func (a *Adapter) DrainEvents() []DomainEvent {
	events := a.pending
	a.pending = nil
	return events
}

// AddRoute attaches a route to the adapter.
func (a *Adapter) AddRoute(name, source, destination string, priority int) (Route, error) {
	if destination == "" {
		return Route{}, errors.New("route destination must not be blank")
	}
	route := Route{
		RouteID:     uuid.NewString(),
		AdapterID:   a.AdapterID,
		Name:        name,
		Source:      source,
		Destination: destination,
		Priority:    priority,
		Status:      StatusActive,
	}
	a.Routes = append(a.Routes, route)
	a.sortRoutes()
	a.record(RouteAdded{
		eventBase:   a.base(),
		RouteID:     route.RouteID,
		Source:      source,
		Destination: destination,
		Priority:    priority,
	})
	return route, nil
}

func (a *Adapter) sortRoutes() {
	sort.SliceStable(a.Routes, func(i, j int) bool {
		if a.Routes[i].Priority != a.Routes[j].Priority {
			return a.Routes[i].Priority < a.Routes[j].Priority
		}
		return a.Routes[i].RouteID < a.Routes[j].RouteID
	})
}

// BestRoute returns the highest-priority active route for a destination,
// honoring the priority-then-routeId order.
func (a *Adapter) BestRoute(destination string) (Route, bool) {
	for _, r := range a.Routes { // already sorted
		if r.Status == StatusActive && r.Destination == destination {
			return r, true
		}
	}
	return Route{}, false
}

// UpdateConfiguration mutates the connection settings.
func (a *Adapter) UpdateConfiguration(endpoint, apiVersion string, timeoutSeconds, retryAttempts int) error {
	if endpoint == "" {
		return errors.New("adapter endpoint must not be blank")
	}
	if timeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", timeoutSeconds)
	}
	a.Endpoint = endpoint
	a.APIVersion = apiVersion
	a.TimeoutSeconds = timeoutSeconds
	a.RetryAttempts = retryAttempts
	a.record(ConfigurationUpdated{
		eventBase:      a.base(),
		Endpoint:       endpoint,
		APIVersion:     apiVersion,
		TimeoutSeconds: timeoutSeconds,
		RetryAttempts:  retryAttempts,
	})
	return nil
}

// Activate transitions the adapter to ACTIVE. Activating an already-active
// adapter fails: a silent no-op would hide a double-apply upstream.
func (a *Adapter) Activate() error {
	if a.Status == StatusActive {
		return ErrAlreadyActive
	}
	a.Status = StatusActive
	a.record(AdapterActivated{eventBase: a.base()})
	return nil
}

// Deactivate transitions the adapter to INACTIVE, failing when already there.
func (a *Adapter) Deactivate() error {
	if a.Status == StatusInactive {
		return ErrAlreadyInactive
	}
	a.Status = StatusInactive
	a.record(AdapterDeactivated{eventBase: a.base()})
	return nil
}

// LogMessage appends to the adapter's outbound audit log. The log is
// append-only; nothing removes entries through the aggregate.
func (a *Adapter) LogMessage(uetrRef, messageType, direction, payload string) MessageLog {
	entry := MessageLog{
		LogID:       uuid.NewString(),
		AdapterID:   a.AdapterID,
		UETR:        uetrRef,
		MessageType: messageType,
		Direction:   direction,
		Payload:     payload,
		LoggedAt:    time.Now().UTC(),
	}
	a.MessageLogs = append(a.MessageLogs, entry)
	a.record(MessageLogged{
		eventBase:   a.base(),
		UETR:        uetrRef,
		MessageType: messageType,
		Direction:   direction,
	})
	return entry
}
