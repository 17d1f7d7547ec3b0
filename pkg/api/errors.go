package api

import (
	"errors"
	"net/http"

	"github.com/workdesk/accessd/pkg/auth"
	"github.com/workdesk/accessd/pkg/authz"
	"github.com/workdesk/accessd/pkg/httputil"
	"github.com/workdesk/accessd/pkg/observability"
)

// writeError maps a domain error to its HTTP status. Unclassified errors are
// logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case authz.IsValidation(err):
		httputil.WriteBadRequest(w, err.Error())
	case authz.IsNotFound(err):
		httputil.WriteNotFound(w, err.Error())
	case authz.IsConflict(err):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, auth.ErrInactiveUser):
		httputil.WriteForbidden(w, err.Error())
	default:
		observability.GetLogger(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		httputil.WriteInternalError(w)
	}
}
