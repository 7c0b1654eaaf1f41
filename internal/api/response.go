package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/erazemk/knjiznica/internal/circulation"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("error encoding response: %v", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// circulationError maps a circulation error to an HTTP status and writes it,
// including the per-field violations when present.
func circulationError(w http.ResponseWriter, err error) {
	var status int
	switch circulation.KindOf(err) {
	case circulation.KindValidation:
		status = http.StatusBadRequest
	case circulation.KindNotFound:
		status = http.StatusNotFound
	case circulation.KindConflict, circulation.KindInventoryExhausted:
		status = http.StatusConflict
	case circulation.KindIllegalTransition:
		status = http.StatusUnprocessableEntity
	default:
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	body := map[string]any{"error": err.Error()}
	if fields := circulation.FieldsOf(err); len(fields) > 0 {
		body["fields"] = fields
	}
	jsonResponse(w, status, body)
}
