// Package platform describes the hosting portals Italian schools publish
// procurement notices on, and resolves which URLs to crawl for a school.
package platform

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Platform is a closed set of tags identifying where a page is hosted.
type Platform string

const (
	// OwnSite marks the school's own website in a resolved candidate list.
	// It is never returned by Detect.
	OwnSite    Platform = "own-site"
	Axios      Platform = "axios"
	Argo       Platform = "argo"
	Spaggiari  Platform = "spaggiari"
	Net4Market Platform = "net4market"
	// Edu is the generic institutional tag used when no portal matches.
	Edu Platform = "edu"
)

type spec struct {
	host     string
	template func(code string) string
}

// Order here is the order candidate URLs are produced in.
var portals = []Platform{Axios, Argo, Spaggiari, Net4Market}

var specs = map[Platform]spec{
	Axios: {
		host:     "trasparenzascuole.it",
		template: func(code string) string { return "https://trasparenzascuole.it/scuola/" + code },
	},
	Argo: {
		host:     "portaleargo.it",
		template: func(code string) string { return "https://portaleargo.it/" + code },
	},
	Spaggiari: {
		host:     "spaggiari.eu",
		template: func(code string) string { return "https://web.spaggiari.eu/" + code },
	},
	Net4Market: {
		host:     "net4market.com",
		template: func(code string) string { return fmt.Sprintf("https://%s.net4market.com", strings.ToLower(code)) },
	},
}

// hostPatterns is sorted longest first so the most specific pattern wins.
var hostPatterns = func() []Platform {
	out := append([]Platform(nil), portals...)
	sort.SliceStable(out, func(i, j int) bool {
		return len(specs[out[i]].host) > len(specs[out[j]].host)
	})
	return out
}()

// Parse converts a stored tag into a Platform. Unknown tags report false.
func Parse(tag string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(tag)))
	switch p {
	case Axios, Argo, Spaggiari, Net4Market, Edu:
		return p, true
	}
	return "", false
}

// IsPortal reports whether p is a third-party portal with a URL template.
func (p Platform) IsPortal() bool {
	_, ok := specs[p]
	return ok
}

func (p Platform) String() string { return string(p) }

// Detect classifies a URL by its hostname. It falls back to Edu.
func Detect(rawURL string) Platform {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	host = strings.ToLower(host)

	for _, p := range hostPatterns {
		pattern := specs[p].host
		if host == pattern || strings.HasSuffix(host, "."+pattern) {
			return p
		}
	}
	return Edu
}

// Candidate is one URL to crawl for a school.
type Candidate struct {
	URL string
	// Role is OwnSite for the school's website, otherwise the portal the
	// URL was built for.
	Role Platform
}

// Resolve returns the URLs to crawl for a school: its own site first, then
// one URL per recognized portal tag. The list is deduplicated and its order
// depends only on the inputs. Unknown tags are ignored.
func Resolve(siteWeb, code string, tags []string) []Candidate {
	var out []Candidate
	seen := make(map[string]struct{})
	add := func(u string, role Platform) {
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, Candidate{URL: u, Role: role})
	}

	if site := NormalizeSite(siteWeb); site != "" {
		add(site, OwnSite)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return out
	}

	present := make(map[Platform]bool, len(tags))
	for _, t := range tags {
		if p, ok := Parse(t); ok {
			present[p] = true
		}
	}
	for _, p := range portals {
		if present[p] {
			add(specs[p].template(code), p)
		}
	}
	return out
}

// NormalizeSite trims a website field and adds an https scheme when the
// dataset omitted it. Values that cannot be a URL yield "".
func NormalizeSite(siteWeb string) string {
	s := strings.TrimSpace(siteWeb)
	if s == "" || strings.EqualFold(s, "non disponibile") || s == "-" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.String()
}
