package utils

import "github.com/microcosm-cc/bluemonday"

var sanitizer = bluemonday.StrictPolicy()

// Sanitize strips all markup from caller-supplied strings (slug, source,
// path). The values end up in reporting dashboards, so stored XSS is the
// concern here.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
