package bkash

import "strings"

// The four token endpoints plus the two product-line base URLs are fixed by
// the provider. Overrides exist so tests can point at an httptest server.
const (
	sandboxGrantURL   = "https://tokenized.sandbox.bka.sh/v1.2.0-beta/tokenized/checkout/token/grant"
	liveGrantURL      = "https://tokenized.pay.bka.sh/v1.2.0-beta/tokenized/checkout/token/grant"
	sandboxRefreshURL = "https://tokenized.sandbox.bka.sh/v1.2.0-beta/tokenized/checkout/token/refresh"
	liveRefreshURL    = "https://tokenized.pay.bka.sh/v1.2.0-beta/tokenized/checkout/token/refresh"

	sandboxCheckoutBase = "https://tokenized.sandbox.bka.sh/v1.2.0-beta/tokenized/checkout"
	liveCheckoutBase    = "https://tokenized.pay.bka.sh/v1.2.0-beta/tokenized/checkout"

	sandboxHostedBase = "https://checkout.sandbox.bka.sh/v1.2.0-beta/checkout"
	liveHostedBase    = "https://checkout.pay.bka.sh/v1.2.0-beta/checkout"
)

// Endpoints resolves provider URLs for a sandbox or live credential set.
type Endpoints struct {
	Sandbox bool

	// Optional overrides, primarily for tests.
	GrantURL     string
	RefreshURL   string
	CheckoutBase string
	HostedBase   string
}

// Grant returns the token grant endpoint.
func (e Endpoints) Grant() string {
	if e.GrantURL != "" {
		return e.GrantURL
	}
	if e.Sandbox {
		return sandboxGrantURL
	}
	return liveGrantURL
}

// Refresh returns the token refresh endpoint.
func (e Endpoints) Refresh() string {
	if e.RefreshURL != "" {
		return e.RefreshURL
	}
	if e.Sandbox {
		return sandboxRefreshURL
	}
	return liveRefreshURL
}

// Checkout joins the tokenized-checkout base URL with the given path.
func (e Endpoints) Checkout(path string) string {
	base := e.CheckoutBase
	if base == "" {
		if e.Sandbox {
			base = sandboxCheckoutBase
		} else {
			base = liveCheckoutBase
		}
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Hosted joins the hosted-checkout base URL with the given path.
func (e Endpoints) Hosted(path string) string {
	base := e.HostedBase
	if base == "" {
		if e.Sandbox {
			base = sandboxHostedBase
		} else {
			base = liveHostedBase
		}
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
