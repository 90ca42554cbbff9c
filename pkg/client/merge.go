package client

import (
	"net/http"
	"strings"
)

// mergeRequestParams combines the client defaults, the call-site base and
// the caller override into the effective parameters. Precedence, lowest
// first: default headers registered for method, client defaults, base,
// override. A later layer replaces every value of a header key set by an
// earlier one. The function is pure: merging a merged result again with a
// nil override returns an equal value.
func (c *HTTPClient) mergeRequestParams(method string, base RequestParams, override *RequestParams) RequestParams {
	merged := RequestParams{
		Header: mergeHeaders(c.opts.methodHeaders[strings.ToUpper(method)]),
	}
	merged = layerParams(merged, c.opts.defaults)
	merged = layerParams(merged, base)
	if override != nil {
		merged = layerParams(merged, *override)
	}
	return merged
}

// layerParams applies src on top of dst with rightmost-wins semantics for
// every field and a key-wise union for headers.
func layerParams(dst, src RequestParams) RequestParams {
	out := dst
	out.Header = mergeHeaders(dst.Header, src.Header)
	if src.BaseURL != "" {
		out.BaseURL = src.BaseURL
	}
	if src.Timeout != 0 {
		out.Timeout = src.Timeout
	}
	if src.Secure != nil {
		out.Secure = boolPtr(*src.Secure)
	}
	if src.Type != "" {
		out.Type = src.Type
	}
	if src.Format != "" {
		out.Format = src.Format
	}
	return out
}

// mergeHeaders returns a new header set holding the union of the inputs.
// Keys are canonicalised so matching is case-insensitive; a later set
// replaces the values of an earlier one for the same key.
func mergeHeaders(sets ...http.Header) http.Header {
	var out http.Header
	for _, h := range sets {
		for k, vv := range h {
			if out == nil {
				out = make(http.Header)
			}
			out[http.CanonicalHeaderKey(k)] = append([]string(nil), vv...)
		}
	}
	return out
}
