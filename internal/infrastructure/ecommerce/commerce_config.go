package ecommerce

import (
	"errors"
	"strings"
	"time"
)

// CommerceConfig holds configuration for the commerce REST API
type CommerceConfig struct {
	// BaseURL is the store URL; the REST root is BaseURL + "rest/V1/"
	BaseURL string
	// ConsumerKey and ConsumerSecret identify the integration
	ConsumerKey    string
	ConsumerSecret string
	// AccessToken and AccessTokenSecret authorize the integration
	AccessToken       string
	AccessTokenSecret string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// RateLimit caps requests per second, 0 disables limiting
	RateLimit float64
	RateBurst int
}

// Errors for commerce configuration
var (
	ErrCommerceConfigMissingBaseURL     = errors.New("commerce: base url is required")
	ErrCommerceConfigMissingConsumerKey = errors.New("commerce: consumer key and secret are required")
	ErrCommerceConfigMissingAccessToken = errors.New("commerce: access token and secret are required")
)

// Validate validates the configuration and fills defaults
func (c *CommerceConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrCommerceConfigMissingBaseURL
	}
	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		return ErrCommerceConfigMissingConsumerKey
	}
	if c.AccessToken == "" || c.AccessTokenSecret == "" {
		return ErrCommerceConfigMissingAccessToken
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
	return nil
}

// RestRoot returns the versioned REST root URL
func (c *CommerceConfig) RestRoot() string {
	return c.BaseURL + "rest/V1/"
}
