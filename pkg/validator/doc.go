// Package validator provides small composable rules for checking job payloads
// before they are enqueued or handled.
//
// A Rule pairs a Check function with the field-level error reported when the
// check fails. Apply evaluates every rule and aggregates failures into
// ValidationErrors, which implements error and keeps each field's messages
// available to callers.
//
// # Usage
//
//	func (p GeneratePayload) Validate() error {
//	    return validator.Apply(
//	        validator.MinNum("days_ahead", p.DaysAhead, 0),
//	        validator.MaxNum("days_ahead", p.DaysAhead, 366),
//	    )
//	}
//
// Errors survive wrapping, so ExtractValidationErrors and IsValidationError
// work on an error joined with queue.ErrInvalidPayload.
//
// The package is stateless and safe for concurrent use.
package validator
