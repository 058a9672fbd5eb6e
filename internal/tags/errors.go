package tags

import "notecore/internal/errs"

func errInvalidName(name, reason string) error {
	return errs.Validation("invalid tag name %q: %s", name, reason)
}
