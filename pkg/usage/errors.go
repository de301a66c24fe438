package usage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a record does not exist
	ErrNotFound = errors.New("usage: not found")
	// ErrAlreadyExists is returned by stores when a unique key is already taken
	ErrAlreadyExists = errors.New("usage: already exists")
	// ErrInvalidDelta is returned for negative counter deltas and deltas above MaxDelta
	ErrInvalidDelta = fmt.Errorf("usage: counter delta must be between 0 and %d", MaxDelta)
	// ErrInvalidShop is returned for an empty shop domain
	ErrInvalidShop = errors.New("usage: shop is required")
)

// ConfigurationError reports that usage was requested for a shop whose subscription
// info has not been recorded yet. It indicates a caller ordering bug.
type ConfigurationError struct {
	Shop string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("subscription info not found for shop %s", e.Shop)
}

// IsConfigurationError checks if an error is a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsNotFound checks if an error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
