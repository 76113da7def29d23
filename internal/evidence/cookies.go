package evidence

import "strings"

// ParseCookieHeader splits a document.cookie string into pairs, in order. A pair
// without '=' gets an empty value; values keep any '=' after the first one.
func ParseCookieHeader(header string) []Cookie {
	cookies := make([]Cookie, 0)
	if header == "" {
		return cookies
	}
	for _, part := range strings.Split(header, "; ") {
		key, value, _ := strings.Cut(part, "=")
		if key == "" {
			continue
		}
		cookies = append(cookies, Cookie{Key: key, Value: value})
	}
	return cookies
}
