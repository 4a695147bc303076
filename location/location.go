// Package location holds the URL rules of the navigation engine: cache keys,
// anchors, and which locations the engine may intercept.
package location

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Expand resolves ref against base.
func Expand(base *url.URL, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("location: parse %q: %w", ref, err)
	}
	if base == nil {
		return u, nil
	}
	return base.ResolveReference(u), nil
}

// Anchor returns the fragment of u, unescaped, or "".
func Anchor(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Fragment
}

// HasAnchor reports whether u carries a non-empty fragment.
func HasAnchor(u *url.URL) bool { return Anchor(u) != "" }

// RequestURL returns u without its fragment.
func RequestURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// CacheKey is the snapshot cache key for u.
func CacheKey(u *url.URL) string { return RequestURL(u) }

// Equal compares two locations including fragments.
func Equal(a, b *url.URL) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// Extension returns the lowercased extension of the last path segment.
func Extension(u *url.URL) string {
	if u.Path == "" {
		return ""
	}
	return strings.ToLower(path.Ext(path.Base(u.Path)))
}

// IsHTML reports whether u looks like an HTML resource.
func IsHTML(u *url.URL) bool {
	switch Extension(u) {
	case "", ".htm", ".html", ".xhtml", ".php":
		return true
	}
	return false
}

// IsPrefixedBy reports whether u is root itself or lies beneath it. The
// query and fragment of u play no part; an empty path counts as "/".
func IsPrefixedBy(u, root *url.URL) bool {
	if origin(u) != origin(root) {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	dir := root.Path
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return p == strings.TrimSuffix(dir, "/") || strings.HasPrefix(p, dir)
}

// IsVisitable reports whether the engine may intercept navigation to u.
func IsVisitable(u, root *url.URL) bool {
	return IsPrefixedBy(u, root) && IsHTML(u)
}

// SameOrigin reports whether a and b share scheme and host.
func SameOrigin(a, b *url.URL) bool {
	return origin(a) == origin(b)
}

func origin(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
