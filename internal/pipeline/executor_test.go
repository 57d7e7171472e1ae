package pipeline

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type counterState struct {
	id      int
	headers int
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestChain_Order(t *testing.T) {
	var calls []string
	c := NewChain(nil)
	for _, s := range []struct {
		name  string
		order int
	}{{"third", 30}, {"first", 10}, {"second", 20}} {
		Register(c, s.name, s.order, Handlers[struct{}]{
			Access: func(ex *Exchange) *struct{} {
				calls = append(calls, s.name)
				return nil
			},
		})
	}

	rec := httptest.NewRecorder()
	c.Handler("svc", okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	got := strings.Join(calls, ",")
	if got != "first,second,third" {
		t.Errorf("access order = %q, want first,second,third", got)
	}
	if names := strings.Join(c.Stages(), ","); names != "first,second,third" {
		t.Errorf("Stages() = %q", names)
	}
}

func TestChain_StateIsPerRequest(t *testing.T) {
	next := 0
	var logged []int
	c := NewChain(nil)
	Register(c, "counter", 0, Handlers[counterState]{
		Access: func(ex *Exchange) *counterState {
			next++
			return &counterState{id: next}
		},
		HeaderFilter: func(ex *Exchange, st *counterState) {
			st.headers++
		},
		Log: func(ex *Exchange, st *counterState) {
			if st.headers != 1 {
				t.Errorf("request %d saw %d header filters", st.id, st.headers)
			}
			logged = append(logged, st.id)
		},
	})

	h := c.Handler("svc", okHandler())
	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}

	if len(logged) != 3 || logged[0] != 1 || logged[1] != 2 || logged[2] != 3 {
		t.Errorf("logged = %v, want [1 2 3]", logged)
	}
}

func TestChain_HeaderFilterRunsOnce(t *testing.T) {
	filters := 0
	c := NewChain(nil)
	Register(c, "hdr", 0, Handlers[struct{}]{
		HeaderFilter: func(ex *Exchange, _ *struct{}) {
			filters++
			ex.ResponseHeader().Set("X-Stage", "set")
		},
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("a"))
		_, _ = w.Write([]byte("b"))
	})

	rec := httptest.NewRecorder()
	c.Handler("svc", handler).ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))

	if filters != 1 {
		t.Errorf("header filter ran %d times, want 1", filters)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if rec.Header().Get("X-Stage") != "set" {
		t.Error("expected header set during HeaderFilter to reach the client")
	}
}

func TestChain_ImplicitWriteFiresHeaderFilter(t *testing.T) {
	var status int
	c := NewChain(nil)
	Register(c, "hdr", 0, Handlers[struct{}]{
		HeaderFilter: func(ex *Exchange, _ *struct{}) { status = ex.Status() },
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body"))
	})

	c.Handler("svc", handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if status != http.StatusOK {
		t.Errorf("status seen by header filter = %d, want 200", status)
	}
}

func TestChain_InformationalHeaderDoesNotFire(t *testing.T) {
	var seen []int
	c := NewChain(nil)
	Register(c, "hdr", 0, Handlers[struct{}]{
		HeaderFilter: func(ex *Exchange, _ *struct{}) { seen = append(seen, ex.Status()) },
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusEarlyHints)
		w.WriteHeader(http.StatusOK)
	})

	c.Handler("svc", handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if len(seen) != 1 || seen[0] != http.StatusOK {
		t.Errorf("header filter statuses = %v, want [200]", seen)
	}
}

func TestChain_RespondSkipsRemainingAccess(t *testing.T) {
	var (
		secondAccess bool
		secondHeader bool
		secondLogNil bool
		upstreamHit  bool
	)
	c := NewChain(nil)
	Register(c, "gate", 0, Handlers[struct{}]{
		Access: func(ex *Exchange) *struct{} {
			ex.Respond(http.StatusUnauthorized, "denied")
			return nil
		},
	})
	Register(c, "observer", 10, Handlers[counterState]{
		Access: func(ex *Exchange) *counterState {
			secondAccess = true
			return &counterState{}
		},
		HeaderFilter: func(ex *Exchange, st *counterState) {
			secondHeader = true
		},
		Log: func(ex *Exchange, st *counterState) {
			secondLogNil = st == nil
		},
	})

	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHit = true
	})

	rec := httptest.NewRecorder()
	c.Handler("svc", upstream).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if secondAccess {
		t.Error("access of later stage should be skipped after Respond")
	}
	if !secondHeader {
		t.Error("header filter of later stage should still run")
	}
	if !secondLogNil {
		t.Error("log of skipped stage should receive nil state")
	}
	if upstreamHit {
		t.Error("upstream should not be called after Respond")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if rec.Body.String() != "denied" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "denied")
	}
}

func TestChain_SilentHandlerAnswers200(t *testing.T) {
	status := -1
	headerRan := false
	c := NewChain(nil)
	Register(c, "obs", 0, Handlers[struct{}]{
		HeaderFilter: func(ex *Exchange, _ *struct{}) {
			headerRan = true
			ex.ResponseHeader().Set("X-Seen", "yes")
		},
		Log: func(ex *Exchange, _ *struct{}) { status = ex.Status() },
	})

	silent := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	c.Handler("svc", silent).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if !headerRan {
		t.Error("header filter should run for the implicit 200")
	}
	if status != http.StatusOK || rec.Code != http.StatusOK {
		t.Errorf("status = %d (client %d), want 200", status, rec.Code)
	}
	if rec.Header().Get("X-Seen") != "yes" {
		t.Error("expected header filter output on the implicit 200")
	}
}

func TestChain_StagePanicIsRecovered(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logRan := false
	c := NewChain(logger)
	Register(c, "broken", 0, Handlers[struct{}]{
		Access: func(ex *Exchange) *struct{} { panic("boom") },
		Log:    func(ex *Exchange, _ *struct{}) { logRan = true },
	})

	rec := httptest.NewRecorder()
	c.Handler("svc", okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !logRan {
		t.Error("log phase should run after a recovered access panic")
	}
	output := buf.String()
	if !strings.Contains(output, "pipeline stage panicked") || !strings.Contains(output, "stage=broken") {
		t.Errorf("expected panic to be logged, got: %s", output)
	}
}

func TestChain_LogRunsWhenHandlerAborts(t *testing.T) {
	status := -1
	headerRan := false
	c := NewChain(nil)
	Register(c, "obs", 0, Handlers[struct{}]{
		HeaderFilter: func(ex *Exchange, _ *struct{}) { headerRan = true },
		Log:          func(ex *Exchange, _ *struct{}) { status = ex.Status() },
	})

	aborting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	func() {
		defer func() {
			if rec := recover(); rec != http.ErrAbortHandler {
				t.Errorf("expected abort to propagate, got %v", rec)
			}
		}()
		c.Handler("svc", aborting).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}()

	if headerRan {
		t.Error("header filter should not run for an abandoned response")
	}
	if status != 0 {
		t.Errorf("status = %d, want 0", status)
	}
}

func TestChain_HandlerPanicAnswers500(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	status := -1
	c := NewChain(logger)
	Register(c, "obs", 0, Handlers[struct{}]{
		HeaderFilter: func(ex *Exchange, _ *struct{}) {
			ex.ResponseHeader().Set("X-Request-ID", "abc-123")
		},
		Log: func(ex *Exchange, _ *struct{}) { status = ex.Status() },
	})

	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("panic should be handled by the chain, got %v", r)
			}
		}()
		c.Handler("svc", panicking).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	}()

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("client status = %d, want 500", rec.Code)
	}
	if status != http.StatusInternalServerError {
		t.Errorf("logged status = %d, want 500", status)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
	output := buf.String()
	if !strings.Contains(output, "handler panicked") || !strings.Contains(output, "route=svc") {
		t.Errorf("expected handler panic to be logged, got: %s", output)
	}
}

func TestChain_PanicAfterHeaderPropagates(t *testing.T) {
	status := -1
	c := NewChain(nil)
	Register(c, "obs", 0, Handlers[struct{}]{
		Log: func(ex *Exchange, _ *struct{}) { status = ex.Status() },
	})

	partial := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		panic("mid-body")
	})

	func() {
		defer func() {
			if rec := recover(); rec != "mid-body" {
				t.Errorf("expected panic to propagate, got %v", rec)
			}
		}()
		c.Handler("svc", partial).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}()

	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
}

func TestChain_RouteAndRequestExposed(t *testing.T) {
	c := NewChain(nil)
	Register(c, "mutate", 0, Handlers[struct{}]{
		Access: func(ex *Exchange) *struct{} {
			if ex.Route != "users" {
				t.Errorf("route = %q, want users", ex.Route)
			}
			ex.Request.Header.Set("X-Added", "yes")
			return nil
		},
	})

	var forwarded string
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = r.Header.Get("X-Added")
	})

	c.Handler("users", upstream).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/users", nil))
	if forwarded != "yes" {
		t.Errorf("forwarded header = %q, want yes", forwarded)
	}
}
