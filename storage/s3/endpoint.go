package s3

import (
	"net/url"
	"regexp"
	"strings"
)

// addressingTable lists S3-compatible endpoints that only accept
// virtual-hosted-style requests.
type addressingTable struct {
	// hosts are matched exactly against the endpoint host.
	hosts []string

	// patterns are matched against the whole endpoint host.
	patterns []*regexp.Regexp

	// insecure lists the only endpoints accepted over plain HTTP.
	insecure []string
}

var virtualHostedEndpoints = addressingTable{
	hosts: []string{
		"cwobject.com",
	},
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`^accel-object\.[a-z0-9-]+\.coreweave\.com$`),
		regexp.MustCompile(`^object\.[a-z0-9-]+\.coreweave\.com$`),
	},
	insecure: []string{
		"http://cwlota.com",
	},
}

// requiresVirtualHost reports whether endpoint must be addressed in
// virtual-hosted style. Endpoints are assumed to be HTTPS unless listed as
// an insecure exception.
func (t addressingTable) requiresVirtualHost(endpoint string) bool {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return false
	}
	for _, e := range t.insecure {
		if endpoint == e {
			return true
		}
	}

	if !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	for _, h := range t.hosts {
		if u.Host == h {
			return true
		}
	}
	for _, p := range t.patterns {
		if p.MatchString(u.Host) {
			return true
		}
	}
	return false
}

// RequiresVirtualHost reports whether the S3-compatible endpoint only
// supports virtual-hosted-style addressing.
func RequiresVirtualHost(endpoint string) bool {
	return virtualHostedEndpoints.requiresVirtualHost(endpoint)
}

// normalizeEndpoint adds an https scheme to bare hosts.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}
