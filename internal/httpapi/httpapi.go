package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/socialstream/platform/internal/faults"
)

// CallerHeader carries the authenticated user id, attached by the upstream
// gateway. Services trust it as an opaque identifier.
const CallerHeader = "X-User-ID"

// ErrorDetail is the structured failure body: a stable category plus a
// human-readable message.
type ErrorDetail struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

type errorBody struct {
	Error ErrorDetail `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, faults.HTTPStatus(err), errorBody{ErrorDetail{
		Category: string(faults.KindOf(err)),
		Message:  err.Error(),
	}})
}

type callerContextKey struct{}

// RequireCaller rejects requests the gateway did not authenticate.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(CallerHeader)
		if userID == "" {
			WriteJSON(w, http.StatusUnauthorized, errorBody{ErrorDetail{
				Category: "unauthorized",
				Message:  "missing " + CallerHeader + " header",
			}})
			return
		}
		ctx := context.WithValue(r.Context(), callerContextKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func CallerFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(callerContextKey{}).(string)
	return userID
}
