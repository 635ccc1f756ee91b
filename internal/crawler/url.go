package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NormalizeHost reduces user input such as "https://www.Example.com/" to the
// bare host used as a domain's identity.
func NormalizeHost(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty domain")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse domain: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" || strings.ContainsAny(host, " /") {
		return "", fmt.Errorf("invalid domain %q", raw)
	}
	return host, nil
}

// RegistrableDomain returns the eTLD+1 for host, falling back to the host
// itself for IPs and single-label names.
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// SameSite reports whether two hosts share a registrable domain.
func SameSite(a, b string) bool {
	return RegistrableDomain(a) == RegistrableDomain(b)
}

// ResolveLink resolves href against base and strips the fragment and query.
// Non-http(s) targets are rejected.
func ResolveLink(base *url.URL, href string) (*url.URL, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, errors.New("empty link")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("parse link: %w", err)
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", abs.Scheme)
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	abs.RawQuery = ""
	abs.ForceQuery = false
	abs.Host = strings.ToLower(abs.Host)
	return abs, nil
}
