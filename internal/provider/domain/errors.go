package domain

import (
	"errors"
	"fmt"
)

// ConfigError marks missing or rejected credentials. Fatal, never retried.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider config error: %s", e.Message)
}

// ClientError marks a request the provider rejected as invalid. The caller
// must fix the input; retrying the same request cannot succeed.
type ClientError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ClientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider rejected request (%d): %s", e.StatusCode, e.Message)
}

// TransientError marks a network failure or provider outage. Safe to retry
// with backoff at the caller's discretion.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("provider temporarily unavailable: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsClient(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
