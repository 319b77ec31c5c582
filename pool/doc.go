// Package pool implements the pool-side half of the coordination engine:
// it owns the loopback transport, launches the child editor process, and
// holds a single Worker per test session. It forwards the outer
// test-runner's run/collect requests to the worker over a control
// channel and re-emits the worker's RPC-channel traffic verbatim to
// whichever subscribers the runner has attached via On/Off.
//
// A Worker's lifecycle is Booting -> AwaitingConnect -> AwaitingReady ->
// Ready, driven entirely by messages arriving on the transport; Start
// returns only once the handshake completes, and Stop tears every
// acquired resource down in the reverse order it was acquired.
package pool
