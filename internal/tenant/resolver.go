package tenant

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clearfab/gateway/internal/faults"
)

// APIKey is a stored credential whose claims carry the tenant.
type APIKey struct {
	KeyID     string
	TenantID  string
	KeyHash   string // bcrypt hash of the secret
	IsActive  bool
	ExpiresAt *time.Time
}

// KeyStore looks up API keys by public key id.
type KeyStore interface {
	FindAPIKey(ctx context.Context, keyID string) (*APIKey, error)
}

// Resolver resolves the tenant for an incoming request.
//
// Resolution priority:
//  1. X-Tenant-ID header
//  2. tenantId query parameter
//  3. first path segment after /tenants/
//  4. claim inside the caller's credential (Bearer <keyID>.<secret>)
//  5. the literal "default"
type Resolver struct {
	keys KeyStore
}

func NewResolver(keys KeyStore) *Resolver {
	return &Resolver{keys: keys}
}

// Resolve determines the tenant context for a request. A present-but-
// malformed value at any level is rejected rather than falling through:
// a client that names a tenant must name it correctly.
func (r *Resolver) Resolve(req *http.Request) (Context, error) {
	if id := strings.TrimSpace(req.Header.Get("X-Tenant-ID")); id != "" {
		return r.checked(id, req)
	}
	if id := strings.TrimSpace(req.URL.Query().Get("tenantId")); id != "" {
		return r.checked(id, req)
	}
	if id := pathTenant(req.URL.Path); id != "" {
		return r.checked(id, req)
	}
	if id, err := r.credentialTenant(req); err != nil {
		return Context{}, err
	} else if id != "" {
		return r.checked(id, req)
	}
	return Context{TenantID: Default}, nil
}

func (r *Resolver) checked(id string, req *http.Request) (Context, error) {
	if !ValidID(id) {
		return Context{}, faults.Newf(faults.TenantInvalid, "malformed tenant identifier %q", id)
	}
	return Context{
		TenantID:     id,
		BusinessUnit: strings.TrimSpace(req.Header.Get("X-Business-Unit")),
	}, nil
}

func pathTenant(path string) string {
	const marker = "/tenants/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return ""
	}
	rest := path[idx+len(marker):]
	if end := strings.IndexByte(rest, '/'); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// credentialTenant validates a Bearer credential of the form
// "<keyID>.<secret>" against the key store and returns the tenant claim.
// An absent credential is not an error; an invalid one is.
func (r *Resolver) credentialTenant(req *http.Request) (string, error) {
	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || r.keys == nil {
		return "", nil
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	keyID, secret, found := strings.Cut(token, ".")
	if !found {
		return "", nil // not our credential shape; some other auth layer owns it
	}

	key, err := r.keys.FindAPIKey(req.Context(), keyID)
	if err != nil || key == nil {
		return "", faults.New(faults.TenantInvalid, "unknown api key")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(secret)); err != nil {
		return "", faults.New(faults.TenantInvalid, "invalid api key secret")
	}
	if !key.IsActive {
		return "", faults.New(faults.TenantInvalid, "api key inactive")
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return "", faults.New(faults.TenantInvalid, "api key expired")
	}
	return key.TenantID, nil
}
