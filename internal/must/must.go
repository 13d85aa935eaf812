// Package must provides runtime assertions for invariants that should
// never be violated in practice. A violation means the in-repository
// state (or the program itself) is corrupt, not that the user made a
// mistake, so these panic rather than return an error.
package must

import "fmt"

// Bef panics if b is false.
func Bef(b bool, format string, args ...any) {
	if !b {
		panicf(format, args...)
	}
}

// NotBeBlankf panics if s is empty.
func NotBeBlankf(s string, format string, args ...any) {
	if s == "" {
		panicf(format, args...)
	}
}

// NotBeEmptyf panics if the slice has no elements.
func NotBeEmptyf[T any](s []T, format string, args ...any) {
	if len(s) == 0 {
		panicf(format, args...)
	}
}

// Failf unconditionally panics with the given message.
func Failf(format string, args ...any) {
	panicf(format, args...)
}

func panicf(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}
