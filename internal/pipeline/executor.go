package pipeline

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
)

// Phase identifies a lifecycle point at which stage callbacks run.
type Phase string

const (
	PhaseAccess       Phase = "access"
	PhaseHeaderFilter Phase = "header_filter"
	PhaseLog          Phase = "log"
)

// Handlers holds the per-phase callbacks of one stage. Any of them may be
// nil. S is the per-request state the stage threads between phases.
type Handlers[S any] struct {
	Access       func(ex *Exchange) *S
	HeaderFilter func(ex *Exchange, state *S)
	Log          func(ex *Exchange, state *S)
}

// Chain orchestrates stage execution.
// It maintains an ordered list of stages and runs each phase sequentially.
type Chain struct {
	stages []stage
	logger *slog.Logger
}

type stage struct {
	name  string
	order int
	begin func() *run
}

// run is the per-request instance of a stage. Its callbacks close over the
// state pointer produced by Access for that request only.
type run struct {
	name         string
	access       func(*Exchange)
	headerFilter func(*Exchange)
	log          func(*Exchange)
}

// NewChain creates an empty chain. A nil logger falls back to slog.Default().
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger}
}

// Register adds a named stage. Stages run in ascending order; stages with
// equal order run in registration order. Registration must happen before
// Handler is called.
func Register[S any](c *Chain, name string, order int, h Handlers[S]) {
	c.stages = append(c.stages, stage{
		name:  name,
		order: order,
		begin: func() *run {
			var state *S
			return &run{
				name: name,
				access: func(ex *Exchange) {
					if h.Access != nil {
						state = h.Access(ex)
					}
				},
				headerFilter: func(ex *Exchange) {
					if h.HeaderFilter != nil {
						h.HeaderFilter(ex, state)
					}
				},
				log: func(ex *Exchange) {
					if h.Log != nil {
						h.Log(ex, state)
					}
				},
			}
		},
	})
}

// Stages returns the stage names in execution order.
func (c *Chain) Stages() []string {
	sorted := c.sorted()
	names := make([]string, len(sorted))
	for i, s := range sorted {
		names[i] = s.name
	}
	return names
}

func (c *Chain) sorted() []stage {
	sorted := make([]stage, len(c.stages))
	copy(sorted, c.stages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].order < sorted[j].order
	})
	return sorted
}

// Handler wraps next so that every request served through it runs the
// chain's phases. route names the route/service next belongs to.
func (c *Chain) Handler(route string, next http.Handler) http.Handler {
	stages := c.sorted()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ex := NewExchange(r, route, w.Header())

		runs := make([]*run, len(stages))
		for i, s := range stages {
			runs[i] = s.begin()
		}

		pw := &phaseWriter{ResponseWriter: w, onHeader: func(code int) {
			ex.status = code
			for _, rn := range runs {
				c.invoke(rn.name, PhaseHeaderFilter, func() { rn.headerFilter(ex) })
			}
		}}

		defer func() {
			rec := recover()
			// A handler that panicked before answering gets a 500 here, so
			// HeaderFilter and Log observe the status the client receives.
			// ErrAbortHandler means the response is abandoned: status stays 0.
			answered := false
			if rec != nil && rec != http.ErrAbortHandler && !pw.wroteHeader {
				pw.WriteHeader(http.StatusInternalServerError)
				answered = true
				c.logger.Error("handler panicked",
					slog.String("route", route),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
			}
			for _, rn := range runs {
				c.invoke(rn.name, PhaseLog, func() { rn.log(ex) })
			}
			if rec != nil && !answered {
				panic(rec)
			}
		}()

		for _, rn := range runs {
			c.invoke(rn.name, PhaseAccess, func() { rn.access(ex) })
			if ex.responded {
				break
			}
		}

		if ex.responded {
			pw.WriteHeader(ex.respondCode)
			if ex.respondBody != "" && r.Method != http.MethodHead {
				_, _ = pw.Write([]byte(ex.respondBody))
			}
			return
		}

		next.ServeHTTP(pw, ex.Request)
		if !pw.wroteHeader {
			// net/http sends an implicit 200 when a handler writes nothing.
			pw.WriteHeader(http.StatusOK)
		}
	})
}

// invoke runs fn, recovering and logging any panic so a misbehaving stage
// never fails the proxied request.
func (c *Chain) invoke(name string, phase Phase, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("pipeline stage panicked",
				slog.String("stage", name),
				slog.String("phase", string(phase)),
				slog.Any("panic", rec),
			)
		}
	}()
	fn()
}
