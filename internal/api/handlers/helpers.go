package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/eventhub-live/server/internal/api/problem"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func pathParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.PathValue(key))
}

// decodeAndValidate decodes the JSON body into dst and runs the
// validator tags. On failure it writes the problem response and
// returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any, env string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://eventhub.live/problems/validation", "Invalid request body", err, env)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]any, len(verrs))
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
			problem.Write(w, r, http.StatusBadRequest, "https://eventhub.live/problems/validation", "Validation failed", err, env,
				problem.WithErrors(fields))
			return false
		}
		problem.Write(w, r, http.StatusBadRequest, "https://eventhub.live/problems/validation", "Validation failed", err, env)
		return false
	}
	return true
}
