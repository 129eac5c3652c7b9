// Package urlnorm canonicalizes article URLs so the ingestor can
// deduplicate posts regardless of tracking parameters or casing.
package urlnorm

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// trackingPrefixes and trackingExact together are the closed set of
// query keys stripped before comparison. Prefix entries end in "_" and
// match any suffix.
var trackingPrefixes = []string{"utm_", "hsa_", "fb_"}

var trackingExact = map[string]struct{}{
	"fbclid": {}, "gclid": {}, "gclsrc": {}, "dclid": {}, "twclid": {},
	"msclkid": {}, "mc_cid": {}, "mc_eid": {}, "_ga": {}, "_gl": {},
	"ref": {}, "source": {}, "via": {},
}

// Normalize canonicalizes rawURL for dedup comparison. It returns an
// error (not a value) when the URL is ineligible for normalization:
// non-http(s) scheme, embedded userinfo, or an empty hostname.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("urlnorm: parse %q: %w", rawURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("urlnorm: unsupported scheme %q", u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("urlnorm: userinfo not allowed in %q", rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("urlnorm: empty hostname in %q", rawURL)
	}

	out := url.URL{Scheme: scheme, Host: host}
	if port := u.Port(); port != "" {
		if !isDefaultPort(scheme, port) {
			out.Host = host + ":" + port
		}
	}

	path := u.EscapedPath()
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}
	out.Path = path

	out.RawQuery = cleanQuery(u.Query())
	// Fragment intentionally dropped.

	return out.String(), nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if isTrackingParam(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		vs := values[k]
		sort.Strings(vs)
		for j, v := range vs {
			if j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := trackingExact[lower]; ok {
		return true
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
