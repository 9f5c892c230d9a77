package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/clearfab/gateway/internal/idempotency"
	"github.com/clearfab/gateway/internal/tenant"
)

// recordingWriter buffers the response so a successful outcome can be stored
// for replay.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency applies the gate to mutating requests. Requests without a key
// pass straight through; keyed replays are answered from the store with the
// replay markers set; conflicts are rejected before the handler runs.
func Idempotency(gate *idempotency.Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(idempotency.HeaderKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		tc, err := tenant.FromContext(r.Context())
		if err != nil {
			// tenant middleware runs first; a missing tenant here is a wiring
			// bug, not a client error, so fail closed
			http.Error(w, "tenant context missing", http.StatusInternalServerError)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		decision, rec, err := gate.Check(r.Context(), tc.TenantID, key, r.Method, r.URL.Path, body)
		if err != nil {
			WriteFault(w, err)
			return
		}
		if decision == idempotency.Replay {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(idempotency.HeaderReplay, "true")
			w.Header().Set(idempotency.HeaderOriginalTime, rec.ProcessedAt.Format(time.RFC3339))
			w.WriteHeader(rec.ResponseStatus)
			_, _ = w.Write(rec.ResponseBody)
			return
		}

		rw := &recordingWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		// Best effort: a failed store write must not fail the request the
		// client already got an answer to.
		_ = gate.Record(r.Context(), tc.TenantID, key, r.Method, r.URL.Path,
			body, rw.status, rw.body.Bytes())
	})
}
