package edge

import (
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/jmgilman/go/errors"
)

// ResourceClass decides which caching strategy a request gets.
type ResourceClass int

const (
	ClassStatic ResourceClass = iota
	ClassImage
	ClassAPI
	ClassPage
)

func (c ResourceClass) String() string {
	switch c {
	case ClassImage:
		return "image"
	case ClassAPI:
		return "api"
	case ClassPage:
		return "page"
	default:
		return "static"
	}
}

const DefaultImagePattern = `^https://res\.cloudinary\.com/`

/*
Rules classifies request URLs. They are checked in a fixed order:

 1. ImagePattern, matched against the full URL
 2. APIPrefixes, substring match against the path
 3. PagePaths, exact match against the path

Anything else is a static asset.
*/
type Rules struct {
	ImagePattern *regexp.Regexp
	APIPrefixes  []string
	PagePaths    []string

	// StaticManifest lists the paths prefetched into the static cache on
	// install.
	StaticManifest []string
}

// DefaultRules returns the rules of the digital menu application.
func DefaultRules() Rules {
	return Rules{
		ImagePattern: regexp.MustCompile(DefaultImagePattern),
		APIPrefixes:  []string{"/api/", "/menu-data", "/categories"},
		PagePaths:    []string{"/", "/menu", "/admin"},
		StaticManifest: []string{
			"/",
			"/static/css/style.css",
			"/static/js/main.js",
			"/static/js/cache-manager.js",
			"/static/manifest.json",
			"/static/images/placeholder.svg",
		},
	}
}

// NewRules compiles imagePattern and builds a rule set. An empty pattern
// disables the image class.
func NewRules(imagePattern string, apiPrefixes, pagePaths, manifest []string) (Rules, error) {
	r := Rules{
		APIPrefixes:    slices.Clone(apiPrefixes),
		PagePaths:      slices.Clone(pagePaths),
		StaticManifest: slices.Clone(manifest),
	}
	if imagePattern != "" {
		re, err := regexp.Compile(imagePattern)
		if err != nil {
			return Rules{}, errors.WithContext(
				errors.Wrap(err, errors.CodeInvalidConfig, "invalid image pattern"),
				"pattern", imagePattern,
			)
		}
		r.ImagePattern = re
	}
	return r, nil
}

// Classify returns the resource class of u.
func (r Rules) Classify(u *url.URL) ResourceClass {
	if r.ImagePattern != nil && r.ImagePattern.MatchString(u.String()) {
		return ClassImage
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	for _, prefix := range r.APIPrefixes {
		if strings.Contains(p, prefix) {
			return ClassAPI
		}
	}
	if slices.Contains(r.PagePaths, p) {
		return ClassPage
	}
	return ClassStatic
}
