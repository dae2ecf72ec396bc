package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/clypper/roles-rules/internal/api/apierr"
)

// Capabilities gating the REST surface. Mutations require the admin
// capability; reads only need catalog management.
const (
	CapManageOptions = "manage_options"
	CapManageCatalog = "manage_catalog"
)

// Identity is an authenticated caller with its capability set.
type Identity struct {
	Subject      string
	Capabilities map[string]bool
}

// Can reports whether the identity holds the capability. The admin
// capability implies catalog management.
func (id *Identity) Can(capability string) bool {
	if id == nil {
		return false
	}
	if id.Capabilities[CapManageOptions] {
		return true
	}
	return id.Capabilities[capability]
}

// Authenticator resolves the caller of a request. Session handling is the
// host platform's concern; implementations only map whatever credential the
// platform forwards onto an Identity. A nil Identity with nil error means
// the request is anonymous.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// StaticTokenAuthenticator maps bearer tokens onto identities. Suited to
// development and tests; deployments plug in the platform's own session
// authentication.
type StaticTokenAuthenticator struct {
	Tokens map[string]*Identity
}

func (a *StaticTokenAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, nil
	}
	return a.Tokens[token], nil
}

type contextKey struct{}

var identityKey contextKey

// Authenticate resolves the caller once per request and stores the identity
// in the request context. Anonymous requests pass through; the capability
// check rejects them where a capability is required.
func Authenticate(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r)
			if err != nil {
				apierr.WriteJSON(w, http.StatusUnauthorized,
					apierr.New(apierr.CodePermissionDenied, http.StatusUnauthorized, "authentication failed"))
				return
			}
			if identity != nil {
				r = r.WithContext(context.WithValue(r.Context(), identityKey, identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFrom returns the authenticated identity, or nil for anonymous.
func IdentityFrom(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

// RequireCapability rejects anonymous requests with 401 and authenticated
// requests lacking the capability with 403; both use permission_denied.
func RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFrom(r.Context())
			if identity == nil {
				apierr.WriteJSON(w, http.StatusUnauthorized,
					apierr.New(apierr.CodePermissionDenied, http.StatusUnauthorized, "authentication required"))
				return
			}
			if !identity.Can(capability) {
				apierr.WriteJSON(w, http.StatusForbidden,
					apierr.New(apierr.CodePermissionDenied, http.StatusForbidden, "insufficient capability"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
