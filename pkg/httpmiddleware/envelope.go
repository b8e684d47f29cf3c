package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Error codes written by this package.
const (
	CodeRateLimited   = "RATE_LIMITED"
	CodeInternalError = "INTERNAL_ERROR"
)

// WriteError writes the failure envelope
// {"success":false,"error":code,"message":msg} with the given status.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("error")
	e.Str(code)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
