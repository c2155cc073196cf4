// route table consulted by the executing phase
package router

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/kfcemployee/monoserve/server/engine"
	"github.com/kfcemployee/monoserve/server/protocol"
)

// lookup miss sentinels, the server maps them to 404 and 405
var (
	ErrPathNotFound     = errors.New("path not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// Handler populates res for a completed req. body serves the declared
// request body and may suspend the handler while bytes are in flight.
// A returned error tears the connection down.
type Handler func(req *protocol.Request, res *protocol.Response, body *engine.BodyReader) error

// Table maps exact paths to methods to handlers. Populated before
// serving, read-only afterwards.
type Table struct {
	routes map[string]map[string]Handler
}

func New() *Table {
	return &Table{routes: make(map[string]map[string]Handler)}
}

// Handle registers h for an exact method and path pair.
func (t *Table) Handle(method, path string, h Handler) {
	byMethod, ok := t.routes[path]
	if !ok {
		byMethod = make(map[string]Handler)
		t.routes[path] = byMethod
	}
	byMethod[method] = h
}

func (t *Table) Get(path string, h Handler)    { t.Handle("GET", path, h) }
func (t *Table) Post(path string, h Handler)   { t.Handle("POST", path, h) }
func (t *Table) Put(path string, h Handler)    { t.Handle("PUT", path, h) }
func (t *Table) Delete(path string, h Handler) { t.Handle("DELETE", path, h) }

// Lookup resolves a handler, failing with ErrPathNotFound for an
// unregistered path and ErrMethodNotAllowed for a registered path
// without the method.
func (t *Table) Lookup(method, path string) (Handler, error) {
	byMethod, ok := t.routes[path]
	if !ok {
		return nil, ErrPathNotFound
	}
	h, ok := byMethod[method]
	if !ok {
		return nil, ErrMethodNotAllowed
	}
	return h, nil
}

// Allowed lists the methods registered for a path, sorted, for the
// Allow header of a 405 reply.
func (t *Table) Allowed(path string) []string {
	methods := lo.Keys(t.routes[path])
	sort.Strings(methods)
	return methods
}
