// Package tenancy maps inbound hosts to division subdomain labels.
package tenancy

import (
	"net"
	"strings"
)

// Resolver matches hosts of the form <label>.<parent> against an allow-list.
type Resolver struct {
	parents []string
	labels  map[string]struct{}
}

// NewResolver creates a Resolver for the given parent domains and labels.
// Both are compared case-insensitively.
func NewResolver(parents, labels []string) *Resolver {
	r := &Resolver{labels: make(map[string]struct{}, len(labels))}
	for _, p := range parents {
		p = strings.Trim(strings.ToLower(strings.TrimSpace(p)), ".")
		if p != "" {
			r.parents = append(r.parents, p)
		}
	}
	for _, l := range labels {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			r.labels[l] = struct{}{}
		}
	}
	return r
}

// Resolve returns the subdomain label of host. ok is false for hosts outside
// the parent domains, labels not on the allow-list, nested labels, localhost
// and IP addresses. A label equal to the first label of its parent names the
// parent itself (ara.ara.aliaslabs.ai) and never resolves under that parent.
func (r *Resolver) Resolve(host string) (label string, ok bool) {
	host = strings.TrimSuffix(strings.ToLower(stripPort(strings.TrimSpace(host))), ".")
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return "", false
	}
	if net.ParseIP(host) != nil {
		return "", false
	}
	for _, parent := range r.parents {
		prefix, found := strings.CutSuffix(host, "."+parent)
		if !found || prefix == "" || strings.Contains(prefix, ".") {
			continue
		}
		if prefix == firstLabel(parent) {
			return "", false
		}
		if _, allowed := r.labels[prefix]; allowed {
			return prefix, true
		}
		return "", false
	}
	return "", false
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func firstLabel(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	return label
}
