package automation

import (
	"errors"
	"fmt"
)

// Domain errors for the automation package.
//
// Condition- and action-level errors are absorbed by the engine and turned
// into a false condition or a failed ActionResult. Check them with errors.Is:
//
//	if errors.Is(err, automation.ErrDataUnavailable) {
//	    // sensor has not reported yet
//	}
var (
	// ErrConfiguration is returned when a condition or action is missing a
	// field its data source, threshold or kind requires.
	ErrConfiguration = errors.New("strategy: configuration error")

	// ErrUnknownAttribute is returned for a device attribute name outside the
	// enumerated accessor set. It wraps ErrConfiguration.
	ErrUnknownAttribute = fmt.Errorf("%w: unknown device attribute", ErrConfiguration)

	// ErrDataUnavailable is returned when a referenced sensor or device has
	// no data.
	ErrDataUnavailable = errors.New("strategy: data unavailable")

	// ErrRender is returned when a template renders to invalid JSON where a
	// JSON object is required.
	ErrRender = errors.New("strategy: render error")

	// ErrTransport is returned when actuator dispatch, notification hand-off
	// or a webhook call fails.
	ErrTransport = errors.New("strategy: transport error")

	// ErrStrategyNotFound is returned when a strategy ID does not exist.
	ErrStrategyNotFound = errors.New("strategy: not found")

	// ErrStrategyExists is returned when creating a strategy with an ID that already exists.
	ErrStrategyExists = errors.New("strategy: already exists")

	// ErrInvalidStrategy is returned when strategy validation fails.
	ErrInvalidStrategy = errors.New("strategy: invalid")

	// ErrExecutionNotFound is returned when an execution record ID does not exist.
	ErrExecutionNotFound = errors.New("strategy: execution not found")

	// ErrExecutionFinalized is returned when updating a record that already
	// reached a terminal status.
	ErrExecutionFinalized = errors.New("strategy: execution already finalized")
)
