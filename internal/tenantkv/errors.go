package tenantkv

import "errors"

var (
	// ErrStoreUnavailable is returned when the backing store cannot be reached
	// or rejects a command. Calls are not retried.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSerialization is returned when a value cannot be encoded before a write
	ErrSerialization = errors.New("value serialization failed")

	// ErrDeserialization is returned when stored content cannot be decoded into
	// the requested shape
	ErrDeserialization = errors.New("value deserialization failed")

	// ErrInvalidTenant is returned for an empty tenant ID or one containing the
	// key delimiter
	ErrInvalidTenant = errors.New("invalid tenant id")

	// ErrInvalidPattern is returned for a ListKeys pattern that does not parse
	ErrInvalidPattern = errors.New("invalid key pattern")
)

// errorKind labels err for metrics
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrDeserialization):
		return "deserialization"
	case errors.Is(err, ErrInvalidTenant):
		return "invalid_tenant"
	case errors.Is(err, ErrInvalidPattern):
		return "invalid_pattern"
	default:
		return "unknown"
	}
}
