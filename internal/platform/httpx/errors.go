package httpx

import (
	"errors"
	"net/http"
)

// ErrValidation marks request validation failures raised in handlers.
var ErrValidation = errors.New("validation failed")

// RespondError maps an error to an RFC7807 response. Domain-specific errors
// are mapped by the handlers before reaching this fallback.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
