package posts

import (
	"notecore/internal/errs"
	"notecore/internal/optional"
)

// validColors enumerates the category colors the client renders.
var validColors = map[string]struct{}{"red": {}, "green": {}, "blue": {}}

// ValidateColor reports an error if color is non-empty and not one of
// the recognized category colors.
func ValidateColor(color string) error {
	if color == "" {
		return nil
	}
	if _, ok := validColors[color]; !ok {
		return errs.Validation("invalid color %q", color)
	}
	return nil
}

// CreateParams are the fields accepted when creating a post.
type CreateParams struct {
	Content  string
	Files    []File
	Color    string
	Shared   bool
	ParentID *int64
}

// UpdateParams are the fields accepted when partially updating a post.
// Every field uses the missing-vs-null sentinel: an unset field leaves
// the stored value unchanged.
type UpdateParams struct {
	Content  optional.Value[string]
	Shared   optional.Value[bool]
	Files    optional.Value[[]File]
	Color    optional.Value[string]
	ParentID optional.Value[*int64]
}

// OrderField names the column filter_posts may sort and page by.
type OrderField string

const (
	OrderByCreatedAt OrderField = "created_at"
	OrderByUpdatedAt OrderField = "updated_at"
	OrderByDeletedAt OrderField = "deleted_at"
)

// FilterParams carries every optional predicate get-posts supports, in
// the same order the reference filter_posts implementation applies
// them.
type FilterParams struct {
	Cursor    *int64
	Deleted   bool
	ParentID  *int64
	Color     string
	Tag       string
	StartDate *int64
	EndDate   *int64
	Shared    *bool
	HasFiles  *bool
	OrderBy   OrderField
	Ascending bool
	PerPage   int
}
