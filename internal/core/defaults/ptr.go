package defaults

// ValueOrDefault dereferences v, falling back to defaultValue when v is nil.
func ValueOrDefault[T any](v *T, defaultValue T) T {
	if v == nil {
		return defaultValue
	}
	return *v
}

// ClonePtr returns a pointer to a copy of *v, so callers can't mutate the source.
func ClonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
