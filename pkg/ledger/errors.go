package ledger

import "fmt"

// AppendError represents a failure to append an entry to the chain.
type AppendError struct {
	Path  string // Ledger file path
	Cause error  // Underlying error
}

// Error implements the error interface.
func (e *AppendError) Error() string {
	return fmt.Sprintf("ledger append error [path=%s]: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *AppendError) Unwrap() error {
	return e.Cause
}

// NewAppendError creates a new AppendError.
func NewAppendError(path string, cause error) *AppendError {
	return &AppendError{Path: path, Cause: cause}
}

// CorruptionError reports a broken chain found by Verify. The chain is never
// auto-repaired; callers decide how to respond.
type CorruptionError struct {
	Path       string // Ledger file path
	BreakIndex int    // First entry index at which recomputation disagrees
	Detail     string // What disagreed (hash, linkage, encoding)
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("ledger corruption [path=%s, index=%d]: %s", e.Path, e.BreakIndex, e.Detail)
}

// NewCorruptionError creates a new CorruptionError.
func NewCorruptionError(path string, index int, detail string) *CorruptionError {
	return &CorruptionError{Path: path, BreakIndex: index, Detail: detail}
}
