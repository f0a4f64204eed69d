package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration é fatal e aparece na construção, nunca no caminho quente.
	ErrConfiguration = errors.New("ratelimit: invalid configuration")
	// ErrStoreUnavailable indica falha ou timeout no ledger remoto.
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")
)

// ConfigError aponta o campo inválido. Faz unwrap para ErrConfiguration.
type ConfigError struct {
	Field  string
	Reason string
}

func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "ratelimit: invalid configuration: " + e.Reason
	}
	return "ratelimit: invalid " + e.Field + ": " + e.Reason
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
