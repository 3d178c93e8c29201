package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/meklund/restitch/pkg/profile"
)

// getConfig retrieves upstream configuration values from the profile in
// context. This function is used by the generated defc code templates; the
// ctx parameter comes from the template's .ctx field.
func getConfig(ctx context.Context, key string) string {
	prof, ok := profile.FromContext(ctx)
	if !ok {
		return ""
	}
	switch strings.ToLower(key) {
	case "api_key":
		return prof.Upstream.GetAPIKey()
	case "base_url":
		return prof.Upstream.GetBaseURL()
	case "organization":
		return prof.Upstream.GetOrganization()
	}
	return ""
}

type RequestOption = func(*http.Request)

func WithQuery(key string, value string) RequestOption {
	return func(req *http.Request) {
		q := req.URL.Query()
		q.Add(key, value)
		req.URL.RawQuery = q.Encode()
	}
}

func WithHeaders(headers http.Header) RequestOption {
	return func(req *http.Request) {
		for k, v := range headers {
			req.Header[k] = v
		}
	}
}

func ReplaceBody(data []byte) RequestOption {
	return func(req *http.Request) {
		if oldBody := req.Body; oldBody != nil {
			oldBody.Close()
		}
		req.ContentLength = int64(len(data))
		req.Body = io.NopCloser(bytes.NewReader(data))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
}
