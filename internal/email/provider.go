// Package email sends transactional order emails.
package email

import (
	"context"
	"fmt"
	"net/http"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider   string
	APIKey     string
	From       string
	HTTPClient *http.Client
}

// NewProvider returns nil without error when no provider is configured;
// callers treat a nil Provider as "email disabled".
func NewProvider(config Config) (Provider, error) {
	switch config.Provider {
	case "":
		return nil, nil
	case "postmark":
		return NewPostmarkProvider(config.APIKey, config.From, config.HTTPClient), nil
	case "resend":
		return NewResendProvider(config.APIKey, config.From, config.HTTPClient), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be either 'postmark' or 'resend'")
	}
}
