package observability

import "strings"

// Attacker-influenced values (routes, methods, ids) are cleaned before they
// reach the log stream so a crafted request cannot inject fields or newlines.

func stripControl(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, value)
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return cleaned
}

// SanitizeRoute bounds a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControl(route, 180)
}

// SanitizeMethod bounds an HTTP method for logging.
func SanitizeMethod(method string) string {
	return stripControl(method, 10)
}

// SanitizeUserID bounds a user identifier for logging.
func SanitizeUserID(uid string) string {
	return stripControl(uid, 64)
}
