package edge

import "fmt"

/*
Generation names the persistent caches of one worker version.

With a prefix the names are "<prefix>-<kind>-<version>", e.g.
"menu-static-v2"; without one they are "<version>-<kind>", e.g.
"v2-static". Activation deletes every persistent cache whose name is not in
the current generation's AllowList.
*/
type Generation struct {
	Prefix  string
	Version string
}

func (g Generation) name(kind string) string {
	if g.Prefix == "" {
		return fmt.Sprintf("%s-%s", g.Version, kind)
	}
	return fmt.Sprintf("%s-%s-%s", g.Prefix, kind, g.Version)
}

func (g Generation) General() string { return g.name("general") }
func (g Generation) Static() string  { return g.name("static") }
func (g Generation) Dynamic() string { return g.name("dynamic") }
func (g Generation) Images() string  { return g.name("images") }

// AllowList returns the four live cache names.
func (g Generation) AllowList() []string {
	return []string{g.General(), g.Static(), g.Dynamic(), g.Images()}
}

// cacheFor maps a resource class to the cache its strategy uses.
func (g Generation) cacheFor(c ResourceClass) string {
	switch c {
	case ClassImage:
		return g.Images()
	case ClassAPI, ClassPage:
		return g.Dynamic()
	default:
		return g.Static()
	}
}
