package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidSeed indicates the seed URL is not an absolute http(s) URL. It
// is surfaced before any browser activity begins.
var ErrInvalidSeed = errors.New("seed url must be an absolute http(s) url")

// ErrJobNotFound is returned by stores when a job id is unknown.
var ErrJobNotFound = errors.New("job not found")

// ExtractionError wraps a per-page failure. The page is omitted from the
// results and the job continues.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
