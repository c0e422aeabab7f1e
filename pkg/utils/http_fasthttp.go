// Package utils holds small fasthttp response helpers.
package utils

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	"datimsync/pkg/syncerr"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSONErrorFast writes {"error": ..., "code": ...}. The code is the sync
// error code when err carries one.
func JSONErrorFast(ctx *fasthttp.RequestCtx, status int, err error) {
	_ = JSONWriteFast(ctx, status, errorBody{Error: err.Error(), Code: syncerr.Code(err)})
}

// JSONWriteFast writes v as JSON with the given status; 0 keeps the current one.
func JSONWriteFast(ctx *fasthttp.RequestCtx, status int, v any) error {
	ctx.SetContentType("application/json")
	if status != 0 {
		ctx.SetStatusCode(status)
	}
	enc := json.NewEncoder(ctx)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
