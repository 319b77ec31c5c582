package scoped

// Once adapts a single emission from a Broadcaster into a disposable
// Future. In the default mode the first emitted value resolves the
// future. When rejects is true the adapter instead treats the emission
// as a failure (for error-event sources): the supplied errFn converts the
// emitted value to an error that rejects the future. Either way the
// subscription is removed as soon as the future settles or Release is
// called, whichever happens first.
func Once[T any](b *Broadcaster[T], rejects bool, errFn func(T) error) (*Future[T], *Handle) {
	future := NewFuture[T]()
	var sub Subscription

	handle := NewHandle(func() {
		b.Off(sub)
	})

	sub = b.On(func(v T) {
		if rejects {
			var err error
			if errFn != nil {
				err = errFn(v)
			}
			future.Reject(err)
		} else {
			future.Resolve(v)
		}
		handle.Release()
	})

	return future, handle
}

// Race waits for whichever of a success Future and an error Future
// settles first, for pairing a success-event adapter with an
// error-event adapter (e.g. socket "message" vs socket "error"/"close").
// Both handles are released once either future settles.
func Race[T any](success *Future[T], successHandle *Handle, failure *Future[T], failureHandle *Handle) (T, error) {
	defer successHandle.Release()
	defer failureHandle.Release()

	select {
	case <-success.Done():
		v, err := success.Await()
		return v, err
	case <-failure.Done():
		v, err := failure.Await()
		return v, err
	}
}
