package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/resiliency"
)

// HTTPDispatcher posts scheme payloads to adapter endpoints. It sits inside
// the resiliency executor, so it does no retrying or timing of its own; it
// honors ctx and reports raw transport errors for classification upstream.
type HTTPDispatcher struct {
	client    *http.Client
	mu        sync.RWMutex
	endpoints map[string]string
	logger    *log.Logger
}

// NewHTTPDispatcher builds the dispatcher with a static endpoint map
// (service name to URL) seeded from configuration.
func NewHTTPDispatcher(endpoints map[string]string) *HTTPDispatcher {
	eps := make(map[string]string, len(endpoints))
	for k, v := range endpoints {
		eps[k] = v
	}
	return &HTTPDispatcher{
		// per-call deadlines come from the executor's time limiter
		client:    &http.Client{Timeout: 0},
		endpoints: eps,
		logger:    log.New(log.Writer(), "[DISPATCH] ", log.LstdFlags),
	}
}

// SetEndpoint installs or replaces a service endpoint (admin updates).
func (d *HTTPDispatcher) SetEndpoint(service, url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints[service] = url
}

// Dispatch posts the payload and decodes the adapter's JSON reply. Non-2xx
// statuses surface as HTTPStatusError so the executor's classifier maps them
// to the fault taxonomy.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, service string, payload []byte) (map[string]interface{}, error) {
	d.mu.RLock()
	endpoint, ok := d.endpoints[service]
	d.mu.RUnlock()
	if !ok {
		return nil, faults.Newf(faults.AdapterUnavailable, "no endpoint configured for %s", service)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read adapter response: %w", err)
	}
	d.logger.Printf("%s -> %d in %s", service, resp.StatusCode, time.Since(started).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &resiliency.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if len(body) == 0 {
		return map[string]interface{}{}, nil
	}
	var reply map[string]interface{}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("adapter %s returned malformed JSON: %w", service, err)
	}
	return reply, nil
}

// HealthProbe issues one configured health-check request and reports the
// status code (0 on transport failure).
func (d *HTTPDispatcher) HealthProbe(ctx context.Context, method, url string, timeout time.Duration) (int, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(probeCtx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build health probe: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return resp.StatusCode, nil
}
