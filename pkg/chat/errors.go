package chat

import (
	"errors"
	"net/http"

	"github.com/homelead/askdb/pkg/llm"
	"github.com/homelead/askdb/pkg/session"
	"github.com/homelead/askdb/pkg/tools"
)

// StatusFor maps an orchestrator error to its HTTP status: caller mistakes
// are 400, provider failures 502, everything else a generic 500.
func StatusFor(err error) int {
	switch {
	case tools.IsUserError(err), errors.Is(err, session.ErrInvalidTenantID):
		return http.StatusBadRequest
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the body text safe to show the caller. Internal
// details never leave the process.
func PublicMessage(err error) string {
	switch StatusFor(err) {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusBadGateway:
		return "LLM unavailable, please retry"
	default:
		return "Internal server error, please try again later"
	}
}
