package bitbucket

import "net/http"

// TokenRoundTripper wraps http.RoundTripper to inject the auth token header
type TokenRoundTripper struct {
	Base       http.RoundTripper
	Token      string
	AuthHeader string
}

// RoundTrip implements http.RoundTripper
func (t *TokenRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Token != "" {
		if t.AuthHeader != "" {
			req.Header.Set(t.AuthHeader, t.Token)
		} else {
			req.Header.Set("Authorization", "Bearer "+t.Token)
		}
	}
	if t.Base == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.Base.RoundTrip(req)
}
