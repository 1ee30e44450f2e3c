package workos

import (
	"context"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v5"
)

// doWithRetry retries network errors and 408/429/5xx responses with
// randomized exponential backoff. Any other response is returned as is.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.retryBackoff

	return backoff.Retry(ctx, func() (*http.Response, error) {
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			req.Body = body
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if isRetryableStatus(resp.StatusCode) {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			_ = resp.Body.Close()
			return nil, newAPIErrorFromResponse(resp.StatusCode, data, resp.Header.Get("X-Request-ID"))
		}
		return resp, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.opts.retryMax)))
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
