// Package auth - state.go encodes and decodes the OAuth state parameter that
// carries the post-sign-in return path.
package auth

import (
	"encoding/json"
	"net/url"
	"strings"
)

// DefaultReturnTo is used whenever the state carries no usable return path.
const DefaultReturnTo = "/"

type oauthState struct {
	ReturnTo string `json:"returnTo"`
}

// EncodeState returns the state parameter for a sign-in starting at returnTo.
func EncodeState(returnTo string) string {
	b, err := json.Marshal(oauthState{ReturnTo: SafeReturnTo(returnTo)})
	if err != nil {
		return ""
	}
	return string(b)
}

// ReturnToFromState extracts the return path from a state parameter. Malformed
// JSON, a missing field or an off-site path all yield DefaultReturnTo.
func ReturnToFromState(state string) string {
	if state == "" {
		return DefaultReturnTo
	}
	var s oauthState
	if err := json.Unmarshal([]byte(state), &s); err != nil {
		return DefaultReturnTo
	}
	return SafeReturnTo(s.ReturnTo)
}

// SafeReturnTo accepts only same-site relative paths. Control characters and
// backslashes are rejected in both the raw and the percent-decoded path since
// browsers drop or normalise them before resolving the Location header.
func SafeReturnTo(path string) string {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return DefaultReturnTo
	}
	if strings.IndexFunc(path, unsafeRedirectRune) >= 0 {
		return DefaultReturnTo
	}
	u, err := url.Parse(path)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil || u.Opaque != "" {
		return DefaultReturnTo
	}
	if strings.HasPrefix(u.Path, "//") || strings.IndexFunc(u.Path, unsafeRedirectRune) >= 0 {
		return DefaultReturnTo
	}
	return path
}

func unsafeRedirectRune(r rune) bool {
	return r < 0x20 || r == 0x7f || r == '\\'
}
