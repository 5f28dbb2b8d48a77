package httpErrors

import (
	"errors"
	"net/http"

	dErrors "consentgate/pkg/domain-errors"
)

// ToHTTPStatus maps a domain error code to an HTTP status so the transport
// layer can translate failures without inspecting messages.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeMalformedRecord:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeConfigMissing, dErrors.CodeVendorUnavailable, dErrors.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// StatusFor resolves any error to an HTTP status. Non-domain errors map to 500.
func StatusFor(err error) (int, dErrors.Code) {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return ToHTTPStatus(de.Code), de.Code
	}
	return http.StatusInternalServerError, dErrors.CodeInternal
}
