package utils

// Pair carries a key with its value through key-ordered streams, e.g. the merged cache enumeration.
type Pair[K any, V any] struct {
	Key   K
	Value V
}
