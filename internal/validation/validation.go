// Package validation checks paths against spec.md §3's Path rules
// before they're allowed into an operation record.
package validation

import (
	"strings"

	"sit/internal/errors"
)

// ValidatePath rejects anything that isn't a clean, relative,
// forward-slash path: no leading slash, no "." or ".." components, no
// trailing slash, non-empty.
func ValidatePath(p string) error {
	if p == "" {
		return errors.MalformedRecord("empty path", nil)
	}
	if strings.HasPrefix(p, "/") {
		return errors.MalformedRecord("path must not start with '/': "+p, nil)
	}
	if strings.HasSuffix(p, "/") {
		return errors.MalformedRecord("path must not end with '/': "+p, nil)
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			return errors.MalformedRecord("path contains an empty component: "+p, nil)
		}
		if part == "." || part == ".." {
			return errors.MalformedRecord("path contains a '.' or '..' component: "+p, nil)
		}
	}
	return nil
}
