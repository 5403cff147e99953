package client

import (
	"context"
	"net/http"
)

// Instrumentation headers describing the identity check outcome.
// Non-authoritative: the backend treats them as telemetry, not proof.
const (
	HeaderCertValidation       = "X-Certificate-Validation"
	HeaderCertValidationMethod = "X-Certificate-Validation-Method"
)

// IdentityChecker validates the client identity (certificate pinning or a
// platform attestation) before a request leaves the device.
type IdentityChecker interface {
	// Check returns the validation method name, or an error when the
	// identity could not be verified.
	Check(ctx context.Context) (string, error)
}

// IdentityCheckerFunc adapts a function to the IdentityChecker interface.
type IdentityCheckerFunc func(ctx context.Context) (string, error)

// Check calls the function.
func (f IdentityCheckerFunc) Check(ctx context.Context) (string, error) {
	return f(ctx)
}

// insecureIdentityChecker passes every check. Used when no pinning backend
// is configured.
type insecureIdentityChecker struct{}

func (insecureIdentityChecker) Check(ctx context.Context) (string, error) {
	return "none", nil
}

// identityTransport gates every request on the identity check and stamps the
// instrumentation headers. Failures are terminal: a request from an
// unverified client never reaches the transport and is never retried.
type identityTransport struct {
	next    http.RoundTripper
	checker IdentityChecker
}

func (t *identityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	method, err := t.checker.Check(req.Context())
	if err != nil {
		return nil, &ClassifiedError{
			Category:  CategoryIdentity,
			Endpoint:  endpointKey(req),
			Retryable: false,
			Err:       err,
		}
	}

	req.Header.Set(HeaderCertValidation, "verified")
	req.Header.Set(HeaderCertValidationMethod, method)
	return t.next.RoundTrip(req)
}
