package api

import (
	"context"
	"net/http"
)

type contextKey string

const actorContextKey contextKey = "actor_user_id"

// actorMiddleware attributes requests to a caller-supplied user id. Login and
// session machinery belong to an external collaborator; this core only needs
// to know who to stamp on the events it publishes.
func (s *Server) actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get("X-Actor-User-ID")
		if actor != "" {
			r = r.WithContext(context.WithValue(r.Context(), actorContextKey, actor))
		}
		next.ServeHTTP(w, r)
	})
}

// actorFromContext returns the attributed user id, or nil if the request
// carried none.
func actorFromContext(ctx context.Context) *string {
	v, ok := ctx.Value(actorContextKey).(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}
