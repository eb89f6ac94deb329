package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/moduletrack/internal/core"
)

// withClient carries the client address and User-Agent into the service so
// imports and deletes are logged with who asked for them. RemoteAddr has
// already been resolved by TrustedRealIP.
func withClient(r *http.Request) context.Context {
	return core.ContextWithClient(r.Context(), r.RemoteAddr, r.UserAgent())
}
