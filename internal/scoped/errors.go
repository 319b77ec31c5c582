package scoped

import "errors"

// ErrTimeout is returned by Future.AwaitTimeout when the bound expires
// before the underlying operation completes.
var ErrTimeout = errors.New("scoped: await timed out")
