package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds every request made by a Client built with NewClient.
const DefaultTimeout = 10 * time.Second

// Client is a client for the gatekeep authority.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new authority client with DefaultTimeout.
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, DefaultTimeout)
}

// NewClientWithTimeout creates a client whose requests give up after timeout.
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}
