// Package posts implements note storage: CRUD over the post tree,
// hashtag-driven tag linkage, cursor pagination, and the daily activity
// counters the client renders as a heatmap.
package posts

import (
	"github.com/uptrace/bun"
)

// Model is the bun row shape for a post.
type Model struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID            int64  `bun:"id,pk,autoincrement"`
	Content       string `bun:"content,notnull"`
	Files         string `bun:"files"`
	Color         string `bun:"color"`
	Shared        bool   `bun:"shared,notnull"`
	ParentID      *int64 `bun:"parent_id"`
	ChildrenCount int    `bun:"children_count,notnull"`
	CreatedAt     int64  `bun:"created_at,notnull"`
	UpdatedAt     int64  `bun:"updated_at,notnull"`
	DeletedAt     *int64 `bun:"deleted_at"`
}

// Deleted reports whether the post is soft-deleted.
func (m *Model) Deleted() bool { return m.DeletedAt != nil }

// Post is the externally visible post shape, including its linked tag
// names and an optional full-text relevance score.
type Post struct {
	ID            int64    `json:"id"`
	Content       string   `json:"content"`
	Files         []File   `json:"files,omitempty"`
	Color         string   `json:"color,omitempty"`
	Shared        bool     `json:"shared"`
	ParentID      *int64   `json:"parent_id,omitempty"`
	ChildrenCount int      `json:"children_count"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
	Tags          []string `json:"tags"`
	Score         *float64 `json:"score,omitempty"`
}

// File describes one attachment referenced by a post's files column.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}
