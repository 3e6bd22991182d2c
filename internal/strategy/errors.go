package strategy

import "errors"

var (
	// ErrStaleBar is returned for a bar whose open time is not after the last
	// accepted bar (duplicates included). Engine state is unchanged.
	ErrStaleBar = errors.New("stale bar")

	// ErrMalformedBar is returned for a bar with impossible prices or a
	// missing timestamp. Engine state is unchanged.
	ErrMalformedBar = errors.New("malformed bar")
)

// ConfigurationError reports every invalid strategy parameter at once.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "invalid strategy configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
