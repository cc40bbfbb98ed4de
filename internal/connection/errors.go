package connection

import "fmt"

// ConfigurationError reports that static configuration required by a mode is
// missing or malformed. It is not retried.
type ConfigurationError struct {
	Mode  Mode
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s mode: %s is not configured", e.Mode, e.Field)
}

// ProvisioningError reports a network or negotiation failure while obtaining
// credentials. The caller may retry with the same or another mode.
type ProvisioningError struct {
	Mode Mode
	Op   string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("%s mode: failed to %s: %v", e.Mode, e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}
