// Package scoped provides deterministic, single-shot resource disposal
// primitives used throughout the coordination engine: the transport
// listener, the accepted client socket, listener registrations, and the
// child-editor launch handle are all modeled as Handles composed into a
// Stack, so Stop() unwinds acquisition in reverse order exactly once.
//
// Handle and Stack give synchronous single-shot release, backed by a
// sync.Once guard on each Handle's Release. Future gives an asynchronous
// single-shot result with optional timeout. Broadcaster fans a stream of
// values out to dynamically subscribing/unsubscribing listeners, calling
// each one synchronously in registration order, so a slow callback
// delays Publish; Iterator buffers values in a bounded ring so its
// consumer does not hold up the publisher.
package scoped
