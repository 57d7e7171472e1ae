package pipeline

import "net/http"

// Exchange is the host-owned view of one request/response pair. It is
// created per request and never shared.
type Exchange struct {
	// Request is the inbound request that will be forwarded upstream.
	// Header changes made during Access travel to the upstream.
	Request *http.Request
	// Route is the name of the route/service that matched the request.
	Route string
	// Consumer is the authenticated consumer identity, if any host stage
	// resolved one.
	Consumer string

	header http.Header
	status int

	responded   bool
	respondCode int
	respondBody string
}

// NewExchange creates the exchange for one request. header is the response
// header map the client will receive.
func NewExchange(r *http.Request, route string, header http.Header) *Exchange {
	return &Exchange{Request: r, Route: route, header: header}
}

// ResponseHeader returns the response header map that will be sent to the
// client. It is only meaningful from HeaderFilter onwards.
func (e *Exchange) ResponseHeader() http.Header {
	return e.header
}

// Status returns the response status code, or 0 if no response header has
// been written.
func (e *Exchange) Status() int {
	return e.status
}

// Respond short-circuits the request from an Access callback. Remaining
// Access callbacks are skipped and the upstream is never called.
func (e *Exchange) Respond(status int, body string) {
	if e.responded {
		return
	}
	e.responded = true
	e.respondCode = status
	e.respondBody = body
}

// ShortCircuited reports whether a stage called Respond.
func (e *Exchange) ShortCircuited() bool {
	return e.responded
}
