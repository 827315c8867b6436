package errors

import (
	"errors"
	"net/http"

	"keygate/internal/license"
)

// FromLicenseError maps an authority error onto a problem response. The
// message the client sees is the authority's own, so the wording matches
// across transport and SDK. Unknown errors collapse to a generic 500.
func FromLicenseError(err error, instance string) *ProblemDetails {
	var lerr *license.Error
	kind := license.KindOf(err)

	pd := func(status int, problemType, title string) *ProblemDetails {
		detail := ""
		if errors.As(err, &lerr) {
			detail = lerr.Message
		}
		p := NewProblemDetails(status, problemType, title, detail, instance)
		p.WithExtension("error_code", string(kind))
		return p
	}

	switch kind {
	case license.KindInvalidKeyFormat:
		return pd(http.StatusBadRequest, TypeLicenseInvalidKey, "Invalid License Key")
	case license.KindNotFound:
		return pd(http.StatusNotFound, TypeLicenseNotFound, "License Not Found")
	case license.KindAlreadyBound:
		return pd(http.StatusConflict, TypeLicenseBound, "License Bound To Another Machine")
	case license.KindRevoked:
		return pd(http.StatusForbidden, TypeLicenseRevoked, "License Revoked")
	case license.KindExpired:
		return pd(http.StatusForbidden, TypeLicenseExpired, "License Expired")
	case license.KindNotFoundOrRevoked:
		return pd(http.StatusNotFound, TypeLicenseAmbiguous, "License Not Found Or Already Revoked")
	default:
		return Internal(instance)
	}
}
