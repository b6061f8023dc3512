package gateway

import (
	"path"
	"strings"
)

// PublicPaths decides which requests bypass authentication.
//
// Matching is a plain prefix test of APIPrefix+suffix against the request
// path, so "/api/users/login/extra" and "/api/users/logindiff" are both public
// when "/users/login" is listed. Callers pass a path that CleanPath accepts.
type PublicPaths struct {
	APIPrefix string
	Suffixes  []string
}

// Match reports whether path is public. It has no side effects and every
// suffix is considered.
func (p PublicPaths) Match(path string) bool {
	for _, suffix := range p.Suffixes {
		if strings.HasPrefix(path, p.APIPrefix+suffix) {
			return true
		}
	}
	return false
}

// CleanPath returns the lexical normal form of an absolute request path and
// whether p was already in it. A trailing slash survives cleaning. Dot
// segments and repeated slashes make a path non-canonical, so a prefix test
// on a canonical path can't be steered into another resource.
func CleanPath(p string) (string, bool) {
	if !strings.HasPrefix(p, "/") {
		return "/", false
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned, cleaned == p
}
