package controllers

import (
	"errors"
	"net/http"

	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/httpapi"
	"github.com/shepherdhq/shepherd/pkg/serrors"
)

var statusByCode = map[string]int{
	"IAM_NOT_FOUND":         http.StatusNotFound,
	"IAM_UNAUTHENTICATED":   http.StatusUnauthorized,
	"IAM_TENANT_MISMATCH":   http.StatusForbidden,
	"IAM_PERMISSION_DENIED": http.StatusForbidden,
	"IAM_CYCLE_DETECTED":    http.StatusConflict,
	"IAM_CROSS_TENANT":      http.StatusConflict,
	"IAM_CONFLICT":          http.StatusConflict,
	"IAM_HAS_DEPENDENTS":    http.StatusConflict,
	"IAM_VALIDATION":        http.StatusUnprocessableEntity,
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Unknown errors become opaque 500s; their detail goes to the log, not the
// client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var base *serrors.BaseError
	if errors.As(err, &base) {
		status, ok := statusByCode[base.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		_ = httpapi.WriteError(w, status, base.Code, base.Message, base.TemplateData)
		return
	}

	if logger, ok := composables.TryUseLogger(r.Context()); ok {
		logger.WithError(err).Error("iam: unhandled service error")
	}
	_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", nil)
}
