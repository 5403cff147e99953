// Package dto provides data transfer objects for the gateway admin API.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/rentora/apiguard/internal/validation"
)

// ResetBreakersRequest selects which breakers to reset. Endpoint keys are URL
// paths and therefore travel in the body, not the route. An empty endpoint
// resets every registered breaker.
type ResetBreakersRequest struct {
	Endpoint string `json:"endpoint"`
}

// Validate checks if the reset breakers request is valid.
func (r *ResetBreakersRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Endpoint,
			validation.When(r.Endpoint != "", customValidation.EndpointPath),
		),
	)
}
