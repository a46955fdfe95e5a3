package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// writeError writes the JSON error envelope shared with the API handlers.
func writeError(w http.ResponseWriter, code int, reason, message string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.Field("code", func(e *jx.Encoder) { e.Int(code) })
	e.Field("reason", func(e *jx.Encoder) { e.Str(reason) })
	e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
