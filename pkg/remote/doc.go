// Package remote is the HTTP/JSON client for the remote collection API.
//
// The client is assembled from Middleware around a Doer. Re-authentication is
// one of them: when a request comes back 401 the client logs in again and
// repeats the request once.
//
//	client, err := remote.New(remote.Options{
//	    BaseURL:  "https://example.org/api",
//	    Username: "me",
//	    Password: "secret",
//	    Limiter:  ratelimit.NewTokenBucket(120, 4),
//	}, log)
//	if err != nil {
//	    return err
//	}
//	if err := client.Authenticate(ctx, "me", "secret"); err != nil {
//	    return err
//	}
//	page, err := client.Favorites(ctx, 1)
//
// Failures are *errors.Error values from favsync/pkg/errors, classified by
// HTTP status.
package remote
