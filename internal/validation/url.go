package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL checks a URL before it is handed to the platform's browser
// opener.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}
	if err := ValidateArgument(rawURL); err != nil {
		return fmt.Errorf("URL %w", err)
	}
	if strings.ContainsAny(rawURL, " ()") {
		return fmt.Errorf("URL contains spaces or parentheses")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}
