// Package router dispatches fasthttp requests by method and path pattern.
// Patterns use {name} segments; matched values are stored as user values.
package router

import (
	"sort"
	"strings"

	"github.com/valyala/fasthttp"
)

type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

type Router struct {
	routes     map[string][]route
	notFound   fasthttp.RequestHandler
	middleware []Middleware
}

type route struct {
	pattern  string
	segments []segment
	handler  fasthttp.RequestHandler
}

type segment struct {
	name    string
	isParam bool
}

func New() *Router {
	return &Router{routes: make(map[string][]route)}
}

// Use wraps every handler registered afterwards, outermost first.
func (r *Router) Use(m ...Middleware) {
	r.middleware = append(r.middleware, m...)
}

// Handler satisfies fasthttp.RequestHandler. HEAD falls back to GET routes;
// a path known under another method gets 405 with an Allow header.
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())
	if r.dispatch(ctx, method, path) {
		return
	}
	if method == fasthttp.MethodHead && r.dispatch(ctx, fasthttp.MethodGet, path) {
		return
	}
	if allowed := r.allowed(path); len(allowed) > 0 {
		ctx.Response.Header.Set("Allow", strings.Join(allowed, ", "))
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
}

func (r *Router) dispatch(ctx *fasthttp.RequestCtx, method, path string) bool {
	for _, rt := range r.routes[method] {
		if values, ok := match(path, rt.segments); ok {
			for k, v := range values {
				ctx.SetUserValue(k, v)
			}
			rt.handler(ctx)
			return true
		}
	}
	return false
}

func (r *Router) allowed(path string) []string {
	var out []string
	for method, list := range r.routes {
		for _, rt := range list {
			if _, ok := match(path, rt.segments); ok {
				out = append(out, method)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func (r *Router) GET(path string, h fasthttp.RequestHandler)  { r.add(fasthttp.MethodGet, path, h) }
func (r *Router) POST(path string, h fasthttp.RequestHandler) { r.add(fasthttp.MethodPost, path, h) }

// NotFound registers a handler for unmatched routes.
func (r *Router) NotFound(h fasthttp.RequestHandler) {
	r.notFound = h
}

// Routes lists "METHOD pattern" for every registered route, sorted.
func (r *Router) Routes() []string {
	var out []string
	for method, list := range r.routes {
		for _, rt := range list {
			out = append(out, method+" "+rt.pattern)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Router) add(method, path string, h fasthttp.RequestHandler) {
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	r.routes[method] = append(r.routes[method], route{pattern: path, segments: parse(path), handler: h})
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func parse(path string) []segment {
	parts := split(path)
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if len(part) > 2 && strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			segs[i] = segment{name: part[1 : len(part)-1], isParam: true}
		} else {
			segs[i] = segment{name: part}
		}
	}
	return segs
}

// match ignores leading and trailing slashes, so /status and /status/ are
// the same route.
func match(path string, segs []segment) (map[string]string, bool) {
	parts := split(path)
	if len(parts) != len(segs) {
		return nil, false
	}
	values := make(map[string]string)
	for i, seg := range segs {
		if seg.isParam {
			values[seg.name] = parts[i]
			continue
		}
		if seg.name != parts[i] {
			return nil, false
		}
	}
	return values, true
}
