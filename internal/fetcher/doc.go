// Package fetcher implements a reusable HTTP client that reads whole response bodies
// into memory and maps HTTP status codes to typed failures.
//
// A Fetcher owns a bounded connection pool and is safe for concurrent use.
// Every call negotiates gzip (unless the caller chose an Accept-Encoding),
// decompresses gzip-encoded bodies, and classifies the outcome:
//
//   - 200 and 202 return the body;
//   - 404, 400, 403 and 412 return a *FetchError of the matching Kind carrying the body;
//   - any other status returns a *FetchError of KindFetchFailed carrying the body;
//   - network failures return a *FetchError of KindFetchFailed wrapping the cause,
//     tagged with ErrTimeout or ErrUnknownHost where applicable.
//
// Nothing is retried. The configured timeout bounds every call, including the wait
// for a free pooled connection.
//
// Example:
//
//	f, err := fetcher.NewFetcher(fetcher.DefaultConfig(), log)
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	body, err := f.GetString(ctx, "https://example.com/", nil)
//	if errors.Is(err, fetcher.ErrNotFound) {
//		...
//	}
package fetcher
