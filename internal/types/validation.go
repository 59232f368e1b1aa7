package types

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	MaxURLLength = 2048
	MaxDimension = 16384
	MinQuality   = 1
	MaxQuality   = 100

	// DomainAll permits every host.
	DomainAll = "all"
	// DomainLocal permits "/"-rooted paths served from local storage.
	DomainLocal = "local"
)

// RequestValidationConfig contains the rules applied to incoming image requests.
type RequestValidationConfig struct {
	Defaults       Settings
	AllowedDomains []string
	MaxURLLength   int
}

// RequestValidator turns query parameters into a source URL and Settings.
type RequestValidator struct {
	config RequestValidationConfig
}

// NewRequestValidator creates a new RequestValidator with the given configuration.
func NewRequestValidator(config RequestValidationConfig) *RequestValidator {
	if config.MaxURLLength <= 0 {
		config.MaxURLLength = MaxURLLength
	}
	return &RequestValidator{config: config}
}

// Parse validates f, q, w, h and url. Absent parameters take the configured defaults.
func (v *RequestValidator) Parse(query url.Values) (string, Settings, error) {
	settings := v.config.Defaults

	if f := query.Get("f"); f != "" {
		format, err := ParseFormat(f)
		if err != nil || format == "" {
			return "", Settings{}, fmt.Errorf("%w: invalid format %q", ErrInvalidRequest, f)
		}
		settings.Format = format
	}

	var err error
	if settings.Quality, err = intParam(query, "q", settings.Quality, MinQuality, MaxQuality); err != nil {
		return "", Settings{}, err
	}
	if settings.Width, err = intParam(query, "w", settings.Width, 1, MaxDimension); err != nil {
		return "", Settings{}, err
	}
	if settings.Height, err = intParam(query, "h", settings.Height, 1, MaxDimension); err != nil {
		return "", Settings{}, err
	}

	source, err := v.ParseURL(query)
	if err != nil {
		return "", Settings{}, err
	}
	return source, settings, nil
}

// ParseURL validates only the url parameter.
func (v *RequestValidator) ParseURL(query url.Values) (string, error) {
	raw := query.Get("url")
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if len(raw) > v.config.MaxURLLength {
		return "", fmt.Errorf("%w: url length %d exceeds maximum %d",
			ErrInvalidRequest, len(raw), v.config.MaxURLLength)
	}
	if err := v.checkDomain(raw); err != nil {
		return "", err
	}
	return raw, nil
}

func (v *RequestValidator) checkDomain(raw string) error {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		if v.allows(DomainLocal) || v.allows(DomainAll) {
			return nil
		}
		return fmt.Errorf("%w: local paths are not allowed", ErrInvalidRequest)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed url: %v", ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidRequest)
	}
	if v.allows(DomainAll) {
		return nil
	}
	for _, d := range v.config.AllowedDomains {
		d = strings.ToLower(d)
		if d == host {
			return nil
		}
		if suffix, ok := strings.CutPrefix(d, "*."); ok && strings.HasSuffix(host, "."+suffix) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q is not allowed", ErrInvalidRequest, host)
}

func (v *RequestValidator) allows(domain string) bool {
	for _, d := range v.config.AllowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

func intParam(query url.Values, name string, def, lo, hi int) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%w: invalid %s %q (must be %d-%d)", ErrInvalidRequest, name, raw, lo, hi)
	}
	return n, nil
}
