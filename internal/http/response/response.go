package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes v as a JSON body with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Message writes a single-message JSON body.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"message": msg})
}

// FieldErrors writes a 400 body with per-field validation messages.
func FieldErrors(w http.ResponseWriter, errs map[string][]string) {
	JSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
}
