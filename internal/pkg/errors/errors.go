package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTenantIsolation marks a payload whose namespace does not match the
	// component consuming it. Never retried.
	ErrTenantIsolation = errors.New("tenant isolation violation")
	// ErrRollupInvariant marks a child status combination the rollup rules do
	// not cover. Indicates a missed state transition.
	ErrRollupInvariant = errors.New("status rollup invariant violation")
)
