package sparse

import (
	"errors"
	"fmt"
)

// QueryEscapeError reports that a raw query could not be turned into a valid
// full-text match expression. The index catches it internally and degrades to
// a literal-phrase query; it surfaces only when the fallback also fails.
type QueryEscapeError struct {
	Query string
	Err   error
}

func (e *QueryEscapeError) Error() string {
	return fmt.Sprintf("sparse: query %q could not be escaped for full-text search: %v", e.Query, e.Err)
}

func (e *QueryEscapeError) Unwrap() error {
	return e.Err
}

// IsQueryEscapeError reports whether err is a QueryEscapeError.
func IsQueryEscapeError(err error) bool {
	var qe *QueryEscapeError
	return errors.As(err, &qe)
}
