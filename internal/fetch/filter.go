package fetch

import (
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// URLFilter decides which harvested URLs enter the pipeline. Patterns are
// doublestar globs matched against "host/path". An empty include list
// admits everything not excluded; exclusion wins over inclusion.
type URLFilter struct {
	include []string
	exclude []string
}

// NewURLFilter builds a filter from glob pattern lists.
func NewURLFilter(include, exclude []string) *URLFilter {
	return &URLFilter{include: include, exclude: exclude}
}

// Allowed reports whether rawURL passes the filter. Unparseable URLs are
// rejected.
func (f *URLFilter) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	target := u.Host + u.Path
	target = strings.TrimSuffix(target, "/")

	for _, pattern := range f.exclude {
		if ok, _ := doublestar.Match(pattern, target); ok {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if ok, _ := doublestar.Match(pattern, target); ok {
			return true
		}
	}
	return false
}
