package httpapi

import (
	"encoding/json"
	"net/http"

	"notecore/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// errorBody is the envelope every error response renders: code equals
// the HTTP status, error names the error kind, message gives details.
type errorBody struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	e, ok := errs.As(err)
	if !ok {
		e = errs.New(errs.KindInternal, err.Error())
	}
	status := e.Kind.HTTPStatus()
	writeJSON(w, status, errorBody{Code: status, Error: e.Kind.String(), Message: e.Message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errs.Validation("invalid request body: %v", err)
	}
	return nil
}
