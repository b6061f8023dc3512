package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/gin-gonic/gin"
)

type route struct {
	prefix   string
	upstream *url.URL
	proxy    *httputil.ReverseProxy
}

// Proxy forwards allowed requests to the upstream owning their path.
type Proxy struct {
	apiPrefix string
	routes    []route // longest prefix first
}

// NewProxy builds a Proxy. Requests outside apiPrefix are never routed.
func NewProxy(apiPrefix string, routes []RouteConfig) (*Proxy, error) {
	p := &Proxy{apiPrefix: apiPrefix}

	for _, rc := range routes {
		upstream, err := url.Parse(rc.Upstream)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", rc.Prefix, err)
		}
		p.routes = append(p.routes, route{
			prefix:   strings.TrimSuffix(rc.Prefix, "/"),
			upstream: upstream,
			proxy:    p.reverseProxy(upstream),
		})
	}

	sort.SliceStable(p.routes, func(i, j int) bool {
		return len(p.routes[i].prefix) > len(p.routes[j].prefix)
	})

	return p, nil
}

func (p *Proxy) reverseProxy(upstream *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, p.apiPrefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(upstream)
			pr.SetXForwarded()

			// Rewrite drops nothing but hop-by-hop headers, so the bearer
			// token reaches the upstream for its own verification.
			pr.Out.Header.Set(slogx.HeaderRequestID, pr.In.Header.Get(slogx.HeaderRequestID))
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slogx.FromContext(r.Context()).Warn("upstream request failed",
				"upstream", upstream.String(),
				"err", err,
			)
			httpx.WriteError(w, http.StatusBadGateway, httpx.CodeBadGateway, "Bad gateway")
		},
	}
}

// Match returns the route for path, if any.
func (p *Proxy) Match(path string) (prefix string, upstream *url.URL, ok bool) {
	r, ok := p.match(path)
	if !ok {
		return "", nil, false
	}
	return r.prefix, r.upstream, true
}

func (p *Proxy) match(path string) (route, bool) {
	if !strings.HasPrefix(path, p.apiPrefix) {
		return route{}, false
	}
	rest := strings.TrimPrefix(path, p.apiPrefix)

	for _, r := range p.routes {
		if rest == r.prefix || strings.HasPrefix(rest, r.prefix+"/") {
			return r, true
		}
	}
	return route{}, false
}

// Handle forwards the request, or responds 404 when no route owns it.
func (p *Proxy) Handle(c *gin.Context) {
	// The forwarded path is the decoded one that was matched; RawPath is
	// dropped in Rewrite.
	clean, canonical := CleanPath(c.Request.URL.Path)
	r, ok := p.match(clean)
	if !ok || !canonical {
		httpx.WriteError(c.Writer, http.StatusNotFound, httpx.CodeNotFound, "Not found")
		c.Abort()
		return
	}

	// Carry the request id assigned at the edge.
	c.Request.Header.Set(slogx.HeaderRequestID, c.Writer.Header().Get(slogx.HeaderRequestID))

	slogx.FromContext(c.Request.Context()).Debug("forwarding request",
		slog.String("route", r.prefix),
		slog.String("upstream", r.upstream.String()),
	)
	r.proxy.ServeHTTP(c.Writer, c.Request)
}
