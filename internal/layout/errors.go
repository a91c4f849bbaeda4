package layout

import "errors"

// ErrUnavailable means the parsing backend could not be reached. Callers
// may retry the same request.
var ErrUnavailable = errors.New("layout parser unavailable")

// ErrMalformed means the backend answered but the response cannot be used.
// Retrying with the same input will not help.
var ErrMalformed = errors.New("layout parser returned malformed response")
