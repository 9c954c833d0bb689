// Package location turns site-relative resource paths into ordered lists of
// absolute candidate paths, one per plausible hosting topology.
//
// A static dashboard can be served from a root domain, from a repository
// sub-path (project pages), from a doubled prefix after a misconfigured
// deploy, or from a local dev server. The resolver does not know which one
// applies, so it enumerates them in order of likelihood and lets callers try
// each candidate in turn.
package location

import (
	"net/url"
	"path"
	"strings"
)

// Default marker and reserved segments for the published site layout
// (<repo>/apps/web/index.html with data under <repo>/data).
const (
	DefaultMarker = "apps"
	dataRoot      = "data"
)

// DefaultReserved lists first-level segments that are never a repository prefix.
var DefaultReserved = []string{"data", "assets", "duckdb", "manifests"}

// Config describes the page a resolver works for.
type Config struct {
	// Location is the URL (or bare path) of the current page.
	Location string

	// Marker is the application-root segment. Everything before it is the
	// repository prefix.
	Marker string

	// Reserved segments are never taken as a repository prefix.
	Reserved []string
}

// Resolver derives candidate paths from a fixed page location.
// It is safe for concurrent use.
type Resolver struct {
	pageDir  string
	prefix   string
	marker   string
	reserved map[string]bool
}

// New creates a resolver for the given page location. An unparseable
// location is treated as the site root.
func New(cfg Config) *Resolver {
	marker := cfg.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	reservedList := cfg.Reserved
	if reservedList == nil {
		reservedList = DefaultReserved
	}
	reserved := make(map[string]bool, len(reservedList))
	for _, r := range reservedList {
		reserved[r] = true
	}

	locPath := "/"
	if u, err := url.Parse(cfg.Location); err == nil && u.Path != "" {
		locPath = u.Path
	}

	r := &Resolver{marker: marker, reserved: reserved}
	r.pageDir = pageDirectory(locPath)
	r.prefix = r.repositoryPrefix(locPath)
	return r
}

// PageDir returns the directory of the current page, always slash-terminated.
func (r *Resolver) PageDir() string {
	return r.pageDir
}

// Prefix returns the detected repository prefix, or "/" when there is none.
func (r *Resolver) Prefix() string {
	if r.prefix == "" {
		return "/"
	}
	return r.prefix
}

// Resolve returns the ordered, duplicate-free candidate list for a logical
// path. Absolute URLs are returned unchanged. The result is never empty.
func (r *Resolver) Resolve(logical string) []string {
	if IsAbsoluteURL(logical) {
		return []string{logical}
	}

	clean := cleanLogical(logical)
	if clean == "" {
		return []string{"/"}
	}

	var out candidateSet
	out.add(Normalize(r.pageDir + clean))
	if r.prefix != "" {
		out.add(Normalize(r.prefix + "/" + clean))
	}
	out.add(Normalize("/" + clean))

	// Last resort for the data tree: drop whatever was accidentally put in
	// front of "data/" and re-anchor at the prefix and at the root.
	if tail, ok := dataTail(clean); ok {
		if r.prefix != "" {
			out.add(Normalize(r.prefix + "/" + tail))
		}
		out.add(Normalize("/" + tail))
	}

	return out.list
}

// ResolveWithFallback resolves a logical path and appends a fixed external
// URL as the final candidate.
func (r *Resolver) ResolveWithFallback(logical, external string) []string {
	out := candidateSet{}
	if logical != "" {
		for _, c := range r.Resolve(logical) {
			out.add(c)
		}
	}
	if external != "" {
		out.add(external)
	}
	if len(out.list) == 0 {
		return []string{"/"}
	}
	return out.list
}

// IsAbsoluteURL reports whether p carries an http or https scheme.
func IsAbsoluteURL(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Normalize cleans an absolute path: single leading slash, no repeated
// slashes, no dot segments and no immediately repeated segments
// (/repo/repo/data -> /repo/data).
func Normalize(p string) string {
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return "/"
	}

	segments := strings.Split(strings.TrimPrefix(cleaned, "/"), "/")
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if len(kept) > 0 && kept[len(kept)-1] == seg {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "/"
	}
	return "/" + strings.Join(kept, "/")
}

func (r *Resolver) repositoryPrefix(locPath string) string {
	segments := splitSegments(locPath)
	for i, seg := range segments {
		if seg == r.marker {
			if i == 0 {
				return ""
			}
			return trimRootPrefix(Normalize("/" + strings.Join(segments[:i], "/")))
		}
	}

	if len(segments) == 0 {
		return ""
	}
	first := segments[0]
	if first == r.marker || r.reserved[first] {
		return ""
	}
	// A lone trailing segment without a slash is the page file itself.
	if len(segments) == 1 && !strings.HasSuffix(locPath, "/") {
		return ""
	}
	return trimRootPrefix(Normalize("/" + first))
}

func trimRootPrefix(p string) string {
	if p == "/" {
		return ""
	}
	return p
}

func pageDirectory(locPath string) string {
	if !strings.HasPrefix(locPath, "/") {
		locPath = "/" + locPath
	}
	idx := strings.LastIndex(locPath, "/")
	dir := locPath[:idx+1]
	norm := Normalize(dir)
	if norm == "/" {
		return "/"
	}
	return norm + "/"
}

func cleanLogical(logical string) string {
	s := strings.TrimSpace(logical)
	for {
		switch {
		case strings.HasPrefix(s, "./"):
			s = s[2:]
		case strings.HasPrefix(s, "/"):
			s = s[1:]
		default:
			return s
		}
	}
}

// dataTail returns the part of p starting at a nested "data/" segment.
func dataTail(p string) (string, bool) {
	segments := splitSegments(p)
	for i, seg := range segments {
		if seg == dataRoot && i > 0 && i < len(segments)-1 {
			return strings.Join(segments[i:], "/"), true
		}
	}
	return "", false
}

func splitSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

type candidateSet struct {
	list []string
	seen map[string]bool
}

func (c *candidateSet) add(p string) {
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[p] {
		return
	}
	c.seen[p] = true
	c.list = append(c.list, p)
}
