package medialcurve

import "fmt"

// Operations reported by IOError
const (
	OpLoad  = "load"
	OpWrite = "write"
)

// IOError is a failure while reading the input or producing the output.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
