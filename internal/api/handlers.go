package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/flow"
	"github.com/clearfab/gateway/internal/iso20022"
	"github.com/clearfab/gateway/internal/middleware"
	"github.com/clearfab/gateway/internal/resiliency"
)

const maxBodyBytes = 4 << 20

// handleSubmit is the payment ingress: the body is the ISO message, the
// path names its type, and processing options ride as query parameters.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	messageType := normalizeType(mux.Vars(r)["messageType"])

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteFault(w, faults.Wrap(faults.ValidationFailed, "failed to read request body", err))
		return
	}
	msg, err := iso20022.Parse(body)
	if err != nil {
		middleware.WriteFault(w, err)
		return
	}

	mode := strings.ToUpper(r.URL.Query().Get("responseMode"))
	if mode == "" {
		mode = flow.ResponseImmediate
	}

	result, err := s.engine.Process(r.Context(), flow.Input{
		Message:             msg,
		MessageType:         messageType,
		PaymentType:         r.URL.Query().Get("paymentType"),
		LocalInstrumentCode: r.URL.Query().Get("localInstrumentCode"),
		ResponseMode:        mode,
	})
	if err != nil {
		middleware.WriteFault(w, err)
		return
	}

	status := http.StatusOK
	if result.Status == flow.StatusAwaitingResponse {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// handleCallback receives inbound scheme messages and routes them through
// the correlation path.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	messageType := normalizeType(mux.Vars(r)["messageType"])

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteFault(w, faults.Wrap(faults.ValidationFailed, "failed to read request body", err))
		return
	}
	msg, err := iso20022.Parse(body)
	if err != nil {
		middleware.WriteFault(w, err)
		return
	}

	result, err := s.engine.ProcessInbound(r.Context(), messageType, msg)
	if err != nil {
		middleware.WriteFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// handleServiceHealth reports every tracked service with a fresh protection
// snapshot attached.
func (s *Server) handleServiceHealth(w http.ResponseWriter, _ *http.Request) {
	snaps := s.registry.Snapshots()
	byService := make(map[string]map[string]interface{}, len(snaps))
	for _, snap := range snaps {
		byService[snap.Service] = map[string]interface{}{
			"circuit_state":       snap.CircuitState,
			"failure_rate":        snap.FailureRate,
			"bulkhead_free_slots": snap.BulkheadFreeSlots,
			"rate_limit_permits":  snap.RateLimitPermits,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": s.health.All(byService),
		"pending_correlations": s.engine.Correlator().Pending(),
	})
}

// handleCircuitReset is the forceReset administrative operation.
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	if err := s.registry.ForceReset(service); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Printf("circuit %s force-reset by operator", service)
	writeJSON(w, http.StatusOK, map[string]string{"service": service, "circuit_state": "CLOSED"})
}

// handleConfigurePolicy installs a named policy override and invalidates the
// resolution cache.
func (s *Server) handleConfigurePolicy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	policy := resiliency.DefaultPolicy()
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		middleware.WriteFault(w, faults.Wrap(faults.ValidationFailed, "malformed policy body", err))
		return
	}
	s.registry.Configure(name, policy)
	s.logger.Printf("policy %s configured", name)
	writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "policy": policy})
}

// handleJourney reconstructs every sighting related to a UETR.
func (s *Server) handleJourney(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["uetr"]
	sightings, err := s.store.UETR.Journey(r.Context(), id)
	if err != nil {
		middleware.WriteFault(w, err)
		return
	}
	prefix := id
	if len(id) >= 13 {
		prefix = id[:13]
	}
	records, err := s.store.Flows.ListByUETRPrefix(r.Context(), prefix)
	if err != nil {
		middleware.WriteFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uetr":      id,
		"sightings": sightings,
		"flows":     records,
	})
}

// normalizeType accepts both "pain.001" and "pain001" path spellings.
func normalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if len(t) == 7 && !strings.Contains(t, ".") {
		t = t[:4] + "." + t[4:]
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
