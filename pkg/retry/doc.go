// Package retry runs an operation a bounded number of times with a back-off
// between attempts.
//
// The page fetcher uses it with a constant delay:
//
//	err := retry.Do(ctx, func() error {
//		return fetch(page)
//	}, retry.Constant(3, 500*time.Millisecond, log))
//
// DefaultRetryIf retries transport, throttling and server failures as well as
// local errors, and gives up immediately on cancellation, authentication and
// not-found errors.
package retry
