package match

import "fmt"

// InvalidPatternError reports a pattern that cannot be compiled as a regular
// expression.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// InvalidFlagError reports a flag or threshold value outside its accepted
// range.
type InvalidFlagError struct {
	Flag  string
	Value int
}

func (e *InvalidFlagError) Error() string {
	return fmt.Sprintf("invalid %s: %d (must be between 0 and 100)", e.Flag, e.Value)
}
