package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/clearfab/gateway/internal/clearing"
	"github.com/clearfab/gateway/internal/events"
	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/middleware"
	"github.com/clearfab/gateway/internal/tenant"
)

// AdapterAdmin is the slice of the clearing repository the admin plane
// drives.
type AdapterAdmin interface {
	Save(ctx context.Context, a *clearing.Adapter) error
	Get(ctx context.Context, adapterID string) (*clearing.Adapter, error)
	ListMessageLogs(ctx context.Context, adapterID string, limit int) ([]clearing.MessageLog, error)
}

// handleCreateAdapter provisions a clearing adapter for the caller's tenant.
func (s *Server) handleCreateAdapter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Network  string `json:"network"`
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteFault(w, faults.Wrap(faults.ValidationFailed, "malformed adapter body", err))
		return
	}
	tc, err := tenant.FromContext(r.Context())
	if err != nil {
		middleware.WriteFault(w, err)
		return
	}

	adapter, err := clearing.NewAdapter(tc, req.Name, req.Network, req.Endpoint)
	if err != nil {
		middleware.WriteFault(w, faults.Wrap(faults.ValidationFailed, "invalid adapter", err))
		return
	}
	if err := s.adapters.Save(r.Context(), adapter); err != nil {
		middleware.WriteFault(w, err)
		return
	}
	events.EmitDomainEvents(s.emitter, tc.TenantID, adapter.DrainEvents())
	s.logger.Printf("adapter %s (%s) created for tenant %s", adapter.Name, adapter.AdapterID, tc.TenantID)
	writeJSON(w, http.StatusCreated, adapter)
}

// handleAddRoute attaches a route to one of the tenant's adapters.
func (s *Server) handleAddRoute(w http.ResponseWriter, r *http.Request) {
	adapter, tc, ok := s.loadTenantAdapter(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Source      string `json:"source"`
		Destination string `json:"destination"`
		Priority    int    `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteFault(w, faults.Wrap(faults.ValidationFailed, "malformed route body", err))
		return
	}

	route, err := adapter.AddRoute(req.Name, req.Source, req.Destination, req.Priority)
	if err != nil {
		middleware.WriteFault(w, faults.Wrap(faults.ValidationFailed, "invalid route", err))
		return
	}
	if err := s.adapters.Save(r.Context(), adapter); err != nil {
		middleware.WriteFault(w, err)
		return
	}
	events.EmitDomainEvents(s.emitter, tc.TenantID, adapter.DrainEvents())
	writeJSON(w, http.StatusCreated, route)
}

// handleAdapterStatus flips the adapter between ACTIVE and INACTIVE. A
// transition into the current state is a conflict, not a no-op.
func (s *Server) handleAdapterStatus(activate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter, tc, ok := s.loadTenantAdapter(w, r)
		if !ok {
			return
		}
		var err error
		if activate {
			err = adapter.Activate()
		} else {
			err = adapter.Deactivate()
		}
		if errors.Is(err, clearing.ErrAlreadyActive) || errors.Is(err, clearing.ErrAlreadyInactive) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		if err != nil {
			middleware.WriteFault(w, err)
			return
		}
		if err := s.adapters.Save(r.Context(), adapter); err != nil {
			middleware.WriteFault(w, err)
			return
		}
		events.EmitDomainEvents(s.emitter, tc.TenantID, adapter.DrainEvents())
		writeJSON(w, http.StatusOK, adapter)
	}
}

// handleUpdateAdapterConfig replaces the adapter's connection settings.
func (s *Server) handleUpdateAdapterConfig(w http.ResponseWriter, r *http.Request) {
	adapter, tc, ok := s.loadTenantAdapter(w, r)
	if !ok {
		return
	}
	var req struct {
		Endpoint       string `json:"endpoint"`
		APIVersion     string `json:"apiVersion"`
		TimeoutSeconds int    `json:"timeoutSeconds"`
		RetryAttempts  int    `json:"retryAttempts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteFault(w, faults.Wrap(faults.ValidationFailed, "malformed configuration body", err))
		return
	}

	if err := adapter.UpdateConfiguration(req.Endpoint, req.APIVersion, req.TimeoutSeconds, req.RetryAttempts); err != nil {
		middleware.WriteFault(w, faults.Wrap(faults.ValidationFailed, "invalid configuration", err))
		return
	}
	if err := s.adapters.Save(r.Context(), adapter); err != nil {
		middleware.WriteFault(w, err)
		return
	}
	events.EmitDomainEvents(s.emitter, tc.TenantID, adapter.DrainEvents())
	writeJSON(w, http.StatusOK, adapter)
}

// handleAdapterLogs serves the adapter's outbound audit stream.
func (s *Server) handleAdapterLogs(w http.ResponseWriter, r *http.Request) {
	adapter, _, ok := s.loadTenantAdapter(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := s.adapters.ListMessageLogs(r.Context(), adapter.AdapterID, limit)
	if err != nil {
		middleware.WriteFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"adapterId": adapter.AdapterID,
		"logs":      logs,
	})
}

// loadTenantAdapter resolves the path's adapter and enforces tenant
// ownership. A foreign tenant's adapter reads as absent.
func (s *Server) loadTenantAdapter(w http.ResponseWriter, r *http.Request) (*clearing.Adapter, tenant.Context, bool) {
	tc, err := tenant.FromContext(r.Context())
	if err != nil {
		middleware.WriteFault(w, err)
		return nil, tenant.Context{}, false
	}
	adapterID := mux.Vars(r)["adapterID"]
	adapter, err := s.adapters.Get(r.Context(), adapterID)
	if err != nil {
		middleware.WriteFault(w, err)
		return nil, tenant.Context{}, false
	}
	if adapter == nil || adapter.Tenant.TenantID != tc.TenantID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "adapter not found"})
		return nil, tenant.Context{}, false
	}
	return adapter, tc, true
}
