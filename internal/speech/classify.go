package speech

import (
	"errors"
	"net/http"

	"montage/internal/services"
)

// Classify maps a provider error onto a service marker:
// services.ErrStructural for requests that must change shape before retrying,
// services.ErrTransient for failures worth retrying as-is,
// services.ErrMediaValidation for unusable output and
// services.ErrConfiguration for failures no retry can fix.
// Unknown errors are treated as transient. Callers check their own context
// before classifying; a timed-out request is transient here.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range []error{services.ErrStructural, services.ErrTransient, services.ErrMediaValidation, services.ErrConfiguration} {
		if errors.Is(err, marker) {
			return marker
		}
	}

	var provErr *Error
	if errors.As(err, &provErr) {
		switch code := provErr.StatusCode; {
		case code == http.StatusBadRequest,
			code == http.StatusRequestEntityTooLarge,
			code == http.StatusUnsupportedMediaType,
			code == http.StatusUnprocessableEntity:
			return services.ErrStructural
		case code == http.StatusRequestTimeout,
			code == http.StatusTooManyRequests,
			code >= http.StatusInternalServerError,
			code == 0:
			return services.ErrTransient
		default:
			return services.ErrConfiguration
		}
	}

	return services.ErrTransient
}
