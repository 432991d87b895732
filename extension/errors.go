package extension

import (
	"fmt"
	"strings"
)

// LoadError reports that an extension could not be loaded: the identifier
// was malformed, no factory is registered under it, or the factory failed.
type LoadError struct {
	Identifier string
	Reason     string
	Err        error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load extension %q: %s: %v", e.Identifier, e.Reason, e.Err)
	}
	return fmt.Sprintf("load extension %q: %s", e.Identifier, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InitError reports an extension that was built but rejected its
// configuration. Problems are human-readable, one per issue.
type InitError struct {
	Name     string
	Problems []string
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize extension %q: %s", e.Name, strings.Join(e.Problems, "; "))
}

// DuplicateError reports a second load under an already loaded name. This is
// a programmer error and callers should treat it as fatal.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("extension %q is already loaded", e.Name)
}

// NotFoundError reports a lookup for an extension that was never loaded.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("extension %q is not loaded", e.Name)
}
