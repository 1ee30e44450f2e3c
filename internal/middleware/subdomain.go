package middleware

import (
	"github.com/aragroup/ara-platform/internal/tenancy"
	"github.com/gin-gonic/gin"
)

const (
	// SubdomainHeader carries the resolved division label to handlers.
	SubdomainHeader = "X-Org-Subdomain"
	// SubdomainQueryParam carries the resolved division label in the query string.
	SubdomainQueryParam = "org"
)

// SubdomainMiddleware resolves the division label from the Host header. On a
// match the label is written to the X-Org-Subdomain request header and
// ContextKeySubdomain, and added as the org query parameter unless the client
// already sent one. Other hosts, including localhost, pass through unmodified.
//
// Handlers must read the label from ContextKeySubdomain. The header is only
// authoritative when the context key is set.
func SubdomainMiddleware(resolver *tenancy.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		label, ok := resolver.Resolve(c.Request.Host)
		if !ok {
			c.Next()
			return
		}

		c.Request.Header.Set(SubdomainHeader, label)
		q := c.Request.URL.Query()
		if !q.Has(SubdomainQueryParam) {
			q.Set(SubdomainQueryParam, label)
			c.Request.URL.RawQuery = q.Encode()
		}
		c.Set(ContextKeySubdomain, label)

		c.Next()
	}
}
