package api

import (
	"encoding/json"
	"net/http"
)

const maxJSONBodyBytes int64 = 1 * 1024 * 1024

// decodeJSONBody decodes strictly: unknown fields are rejected and the body
// is capped so a client cannot stream an arbitrarily large "code" field.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
