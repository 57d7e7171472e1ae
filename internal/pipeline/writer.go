package pipeline

import "net/http"

// phaseWriter wraps http.ResponseWriter to fire the HeaderFilter phase
// exactly once, right before the final response header goes out.
type phaseWriter struct {
	http.ResponseWriter
	onHeader    func(code int)
	wroteHeader bool
}

func (pw *phaseWriter) WriteHeader(code int) {
	// Informational responses may precede the final header.
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		pw.ResponseWriter.WriteHeader(code)
		return
	}
	if pw.wroteHeader {
		return
	}
	pw.wroteHeader = true
	pw.onHeader(code)
	pw.ResponseWriter.WriteHeader(code)
}

func (pw *phaseWriter) Write(b []byte) (int, error) {
	if !pw.wroteHeader {
		pw.WriteHeader(http.StatusOK)
	}
	return pw.ResponseWriter.Write(b)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher,
// preserving streaming support (e.g., for SSE).
func (pw *phaseWriter) Flush() {
	if !pw.wroteHeader {
		pw.WriteHeader(http.StatusOK)
	}
	if f, ok := pw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (pw *phaseWriter) Unwrap() http.ResponseWriter {
	return pw.ResponseWriter
}
