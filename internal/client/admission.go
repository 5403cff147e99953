package client

import (
	"net/http"

	breakerService "github.com/rentora/apiguard/internal/breaker/service"
)

// admissionTransport gates requests on the per-endpoint circuit breaker and
// feeds the outcome back into it.
//
// Blocked requests never reach the layers below: no signature is generated,
// no retry runs and the transport is never invoked. The outcome of one
// logical request (after any retries below this layer resolved) is recorded
// exactly once, against the same endpoint that was checked for admission.
type admissionTransport struct {
	next     http.RoundTripper
	registry *breakerService.Registry
}

func (t *admissionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointKey(req)
	breaker := t.registry.Get(endpoint)

	if err := breaker.Allow(ctx); err != nil {
		return nil, &ClassifiedError{
			Category:  CategoryBlocked,
			Endpoint:  endpoint,
			Retryable: false,
			Err:       err,
		}
	}

	resp, err := t.next.RoundTrip(req)
	switch {
	case err != nil:
		// No response at all: the backend may be unreachable.
		breaker.RecordFailure(ctx)
	case resp.StatusCode >= http.StatusInternalServerError:
		breaker.RecordFailure(ctx)
	default:
		// Any response below 5xx proves the backend is alive; client-side
		// errors must not trip the breaker.
		breaker.RecordSuccess(ctx)
	}
	return resp, err
}
