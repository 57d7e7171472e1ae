// Package pipeline provides the request-lifecycle stage chain the gateway
// runs every proxied request through.
//
// Stages are registered in an explicit order and receive control at three
// fixed points of a request:
//   - Access: before the request is forwarded upstream. A stage may mutate
//     the outbound request or short-circuit with Exchange.Respond.
//   - HeaderFilter: once, just before the response header is written to
//     the client.
//   - Log: after the response has been sent (or abandoned).
//
// # Per-request state
//
// Register is generic over the state type a stage carries between phases.
// Access returns a *S; the chain keeps that pointer in a closure created for
// the single request being served and hands it back to HeaderFilter and
// Log. Nothing is stored in a structure shared across requests.
//
// When an earlier stage short-circuits, later stages never see Access and
// their HeaderFilter and Log callbacks receive a nil state. Every stage's
// HeaderFilter and Log still run.
//
// # Failure isolation
//
// A panic in any stage callback is recovered and logged; the request
// continues as if the callback had returned normally.
//
// A panic in the wrapped handler before it wrote a header is answered with
// 500 by the chain itself, so HeaderFilter and Log see that status. A
// handler that returns without writing is answered with 200, as net/http
// would. Only http.ErrAbortHandler leaves the status at 0 and is re-raised.
package pipeline
