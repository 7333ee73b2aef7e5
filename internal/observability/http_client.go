package observability

import (
	"net/http"
	"net/url"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

var defaultPropagationTargets = []string{
	"api.stripe.com",
	"api.resend.com",
	"api.postmarkapp.com",
}

// WrapRoundTripper adds Sentry spans and trace headers for the given hosts
// on top of the defaults.
func WrapRoundTripper(base http.RoundTripper, extraHosts ...string) http.RoundTripper {
	targets := append([]string(nil), defaultPropagationTargets...)
	for _, host := range extraHosts {
		if host != "" {
			targets = append(targets, host)
		}
	}
	return sentryhttpclient.NewSentryRoundTripper(
		base,
		sentryhttpclient.WithTracePropagationTargets(targets),
	)
}

func NewHTTPClient(timeout time.Duration, extraHosts ...string) *http.Client {
	client := &http.Client{
		Transport: WrapRoundTripper(http.DefaultTransport, extraHosts...),
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}

// HostOf returns the host of rawURL, or "" when it does not parse.
func HostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
