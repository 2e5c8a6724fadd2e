package protocol

import "strconv"

// handlerError carries a short, stable kind string alongside the
// underlying error, so the dispatcher can format it as
// "[0,\"Error <Kind> Exception\"]" without re-parsing error text.
type handlerError struct {
	kind string
	err  error
}

func (e *handlerError) Error() string { return e.kind + ": " + e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

// Kind returns the short classification string (e.g. "Connection",
// "Statement", "DBLocked") used to build the envelope message.
func (e *handlerError) Kind() string { return e.kind }

func errWrap(err error, kind string) error {
	return &handlerError{kind: kind, err: err}
}

// ErrorKind extracts the classification kind from err, defaulting to
// "Exception" for anything not produced by errWrap.
func ErrorKind(err error) string {
	if he, ok := err.(*handlerError); ok {
		return he.Kind()
	}
	return "Exception"
}

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
