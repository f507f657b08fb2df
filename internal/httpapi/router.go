// Package httpapi provides embeddable, read-only HTTP diagnostics for a
// running supervision tree: process snapshots, supervisor child lists, and
// registry contents. Spawning and stopping processes is a library-level
// operation (internal/process, internal/supervisor), not something this
// HTTP surface re-exposes.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/noex/internal/metrics"
	"github.com/loykin/noex/internal/process"
	"github.com/loykin/noex/internal/processtable"
	"github.com/loykin/noex/internal/registry"
	"github.com/loykin/noex/internal/supervisor"
)

// Router exposes read-only diagnostics over the runtime state.
type Router struct {
	table       *processtable.Table
	basePath    string
	supervisors func() map[string]*supervisor.Supervisor
	registries  func() map[string]*registry.Registry
}

// New constructs a Router. supervisors and registries are called on every
// request so newly created supervisors/registries show up without restarting
// the router; either may be nil.
func New(table *processtable.Table, basePath string, supervisors func() map[string]*supervisor.Supervisor, registries func() map[string]*registry.Registry) *Router {
	return &Router{table: table, basePath: sanitizeBase(basePath), supervisors: supervisors, registries: registries}
}

// Handler returns an http.Handler serving the diagnostics routes.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/processes", r.handleProcesses)
	group.GET("/processes/:id", r.handleProcess)
	group.GET("/supervisors/:id/children", r.handleSupervisorChildren)
	group.GET("/registries/:name", r.handleRegistry)
	group.GET("/metrics", r.handleMetrics)
	return g
}

// NewServer builds a standalone diagnostics HTTP server for addr; it does not
// start listening.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (r *Router) handleProcesses(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.table.Snapshots())
}

func (r *Router) handleProcess(c *gin.Context) {
	id := process.ID(c.Param("id"))
	p, ok := r.table.Lookup(id)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown process id"})
		return
	}
	writeJSON(c, http.StatusOK, p.Snapshot())
}

func (r *Router) handleSupervisorChildren(c *gin.Context) {
	if r.supervisors == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no supervisors registered"})
		return
	}
	sv, ok := r.supervisors()[c.Param("id")]
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown supervisor id"})
		return
	}
	writeJSON(c, http.StatusOK, sv.Children())
}

func (r *Router) handleRegistry(c *gin.Context) {
	if r.registries == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no registries registered"})
		return
	}
	reg, ok := r.registries()[c.Param("name")]
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown registry name"})
		return
	}
	pattern := c.DefaultQuery("pattern", "*")
	matches := reg.Match(pattern, func(string, registry.Entry) bool { return true })
	writeJSON(c, http.StatusOK, matches)
}

func (r *Router) handleMetrics(c *gin.Context) {
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

type errorResp struct {
	Error string `json:"error"`
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}
