// Package validation provides custom validation rules for the application.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/jellydator/validation"

	apperrors "github.com/rentora/apiguard/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// MinDuration validates that a time.Duration is at least Min.
type MinDuration struct {
	Min time.Duration
}

// Validate checks the duration against the configured minimum.
func (m MinDuration) Validate(value interface{}) error {
	d, ok := value.(time.Duration)
	if !ok {
		return validation.NewError("validation_duration_type", "must be a duration")
	}
	if d < m.Min {
		return validation.NewError(
			"validation_duration_min",
			fmt.Sprintf("must be at least %s", m.Min),
		)
	}
	return nil
}

// HostPort validates that a string is a host:port address.
var HostPort = validation.NewStringRuleWithError(
	func(s string) bool {
		host, port, err := net.SplitHostPort(s)
		return err == nil && host != "" && port != ""
	},
	validation.NewError("validation_host_port", "must be a host:port address"),
)

// AbsoluteURL validates that a string parses as an absolute http(s) URL.
var AbsoluteURL = validation.NewStringRuleWithError(
	func(s string) bool {
		u, err := url.Parse(s)
		if err != nil {
			return false
		}
		return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	},
	validation.NewError("validation_absolute_url", "must be an absolute http or https URL"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// EndpointPath validates the leading-slash URL path form used as circuit
// breaker endpoint keys.
var EndpointPath = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.HasPrefix(s, "/") && !strings.ContainsAny(s, " \t?#")
	},
	validation.NewError("validation_endpoint_path", "must be a URL path starting with /"),
)
