package lifecycle

import "fmt"

// NotFoundError reports a configuration name that is absent from the store
type NotFoundError struct {
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("configuration %q not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// InvalidRequestError reports an event the handler cannot serve: an unknown
// lifecycle tag, an unknown resource type or a malformed property.
type InvalidRequestError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Reason, e.Value)
}

// DispatchError reports a failed call to the installer function.
// The underlying cause is kept intact for errors.Is / errors.As.
type DispatchError struct {
	Target string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s failed: %v", e.Target, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
