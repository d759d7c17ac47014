package chainapi_test

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/canopy-network/defisnap/pkg/chainapi"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testOpts(handler http.Handler, opts chainapi.Opts) chainapi.Opts {
	httpClient := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if err := req.Context().Err(); err != nil {
				return nil, err
			}

			resp := rec.Result()
			resp.Request = req
			if resp.Body == nil {
				resp.Body = http.NoBody
			}
			return resp, nil
		}),
	}

	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = []string{"http://mock"}
	}
	if opts.RPS == 0 {
		opts.RPS = 1000
		opts.Burst = 1000
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = time.Millisecond
		opts.BackoffMax = 2 * time.Millisecond
	}
	opts.HTTPClient = httpClient
	return opts
}
