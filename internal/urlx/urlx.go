// Package urlx implements the URL and domain rules applied to every
// candidate: tracking-parameter stripping, eTLD+1 extraction, blocked
// and foreign domain checks, and listing-page detection.
package urlx

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Tracking parameters stripped from store URLs before dedup and
// persistence. Prefix entries (trailing *) match any parameter with
// that prefix.
var trackingParams = []string{
	"srsltid",
	"gclid",
	"fbclid",
	"msclkid",
	"gad_source",
	"gbraid",
	"wbraid",
	"utm_*",
}

// Clean parses raw, strips tracking parameters and fragments, and
// returns the normalized URL string.
func Clean(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url sem esquema ou host: %q", raw)
	}
	q := u.Query()
	for key := range q {
		if isTrackingParam(key) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	for _, p := range trackingParams {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(key, strings.TrimSuffix(p, "*")) {
				return true
			}
		} else if key == p {
			return true
		}
	}
	return false
}

// Domain returns the eTLD+1 of the URL's host, lowercased.
func Domain(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url sem host: %q", raw)
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Hosts like bare TLDs or IPs; fall back to the raw host.
		return host, nil
	}
	return etld1, nil
}

// IsBrazilian reports whether the eTLD+1 is under the .br ccTLD.
func IsBrazilian(domain string) bool {
	return strings.HasSuffix(domain, ".br")
}

// Listing-page markers: a URL matching any of these is search results
// or category browsing, not a product page.
var listingPathMarkers = []string{
	"/busca/",
	"/busca",
	"/search",
	"/pesquisa",
	"/category/",
	"/categoria/",
	"/categorias/",
	"/c/",
	"/lista/",
	"/listas/",
	"/departamento/",
}

var listingQueryParams = []string{"q", "query", "busca", "term", "termo", "k"}

// IsListing reports whether the URL looks like a listing/search page.
func IsListing(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	for _, m := range listingPathMarkers {
		probe := m
		if !strings.HasSuffix(probe, "/") {
			probe += "/"
		}
		if strings.Contains(path, probe) {
			return true
		}
	}
	q := u.Query()
	for _, p := range listingQueryParams {
		if q.Get(p) != "" {
			return true
		}
	}
	return false
}

// Redirect domains whose "direct links" are interstitials, never a
// store page.
var redirectDomains = map[string]bool{
	"google.com":            true,
	"googleadservices.com":  true,
	"googlesyndication.com": true,
	"doubleclick.net":       true,
	"shopping.google.com":   true,
}

// IsRedirect reports whether the URL's domain is a known redirect or
// ad interstitial host.
func IsRedirect(raw string) bool {
	d, err := Domain(raw)
	if err != nil {
		return false
	}
	return redirectDomains[d]
}

// RedactKey removes the api_key query parameter from a URL for audit
// logging. Parse failures return the input truncated at the query
// string, never the key.
func RedactKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	q := u.Query()
	if q.Get("api_key") != "" {
		q.Set("api_key", "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
