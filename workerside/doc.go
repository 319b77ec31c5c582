// Package workerside implements the half of the coordination engine that
// runs inside the editor's extension host: it dials the pool's loopback
// transport, performs the ready handshake, and bridges the in-editor
// test-runner's RPC traffic to the pool over the RPC channel while
// serving the pool's run/collect/shutdown control requests from a
// strictly ordered command queue.
//
// Run is the runtime's sole entry point: the editor invokes it once, and
// everything else (handshake, command dispatch, RPC fan-out) is driven
// internally from that one call.
package workerside
