package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const maxURLLength = 2048

// FeedURLValidator checks subscription URLs before a feed is created.
// The default configuration rejects localhost and private addresses so
// a hostile OPML import cannot point the fetcher at internal services.
type FeedURLValidator struct {
	AllowLocalhost  bool
	AllowPrivateIPs bool
}

// NewFeedURLValidator returns a validator with secure defaults.
func NewFeedURLValidator() *FeedURLValidator {
	return &FeedURLValidator{}
}

// NewPermissiveFeedURLValidator returns a validator that accepts local
// development URLs.
func NewPermissiveFeedURLValidator() *FeedURLValidator {
	return &FeedURLValidator{AllowLocalhost: true, AllowPrivateIPs: true}
}

// ValidateAndNormalize validates a feed URL and returns its normalized
// form. A missing scheme defaults to https.
func (v *FeedURLValidator) ValidateAndNormalize(input string) (string, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return "", fmt.Errorf("URL cannot be empty")
	}
	if len(input) > maxURLLength {
		return "", fmt.Errorf("URL too long (max %d characters)", maxURLLength)
	}
	if strings.ContainsAny(input, "<>\"'`") {
		return "", fmt.Errorf("URL contains invalid characters")
	}

	if !strings.Contains(input, "://") {
		input = "https://" + input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL must use http or https")
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must have a hostname")
	}

	if err := v.checkHost(parsed.Host); err != nil {
		return "", err
	}

	return parsed.String(), nil
}

func (v *FeedURLValidator) checkHost(host string) error {
	hostname := host
	if strings.Contains(host, ":") {
		var err error
		hostname, _, err = net.SplitHostPort(host)
		if err != nil {
			return fmt.Errorf("invalid host format: %w", err)
		}
	}

	if !v.AllowLocalhost && isLocalhost(hostname) {
		return fmt.Errorf("localhost URLs are not permitted")
	}

	if !v.AllowPrivateIPs {
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("private IP addresses are not permitted")
		}
	}

	return nil
}

func isLocalhost(hostname string) bool {
	return hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasSuffix(hostname, ".localhost")
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsUnspecified()
}
