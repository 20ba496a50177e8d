package middleware

import (
	"net/http"

	"github.com/ayush/receipt-tracker/backend/internal/auth"
	"github.com/ayush/receipt-tracker/backend/internal/response"
)

// RequireAuth validates the session cookie and stores the user id in the
// request context.
func RequireAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := svc.VerifyAuth(r)
			if !res.Authenticated {
				response.Error(w, http.StatusUnauthorized, res.Reason)
				return
			}
			ctx := auth.WithUserID(r.Context(), res.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
