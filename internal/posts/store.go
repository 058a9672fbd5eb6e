package posts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	notecoreerrs "notecore/internal/errs"
	"notecore/internal/tags"
)

// Store persists posts and keeps their tag links in sync with the
// hashtags found in their content.
type Store struct {
	db   *bun.DB
	tags *tags.Store
}

// NewStore builds a Store over db. Tags named by hashtags are found or
// created inside the transaction of the post write that names them.
func NewStore(db *bun.DB, tagStore *tags.Store) *Store {
	return &Store{db: db, tags: tagStore}
}

func nowMS() int64 { return time.Now().UnixMilli() }

func encodeFiles(files []File) (string, error) {
	if len(files) == 0 {
		return "", nil
	}
	b, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encode files: %w", err)
	}
	return string(b), nil
}

func decodeFiles(raw string) []File {
	if raw == "" {
		return nil
	}
	var files []File
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil
	}
	return files
}

// Create inserts a new post, links it to any hashtags found in its
// content, and increments its parent's children_count when parented.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Model, error) {
	if err := ValidateColor(p.Color); err != nil {
		return nil, err
	}
	filesJSON, err := encodeFiles(p.Files)
	if err != nil {
		return nil, notecoreerrs.Validation("%v", err)
	}

	ts := nowMS()
	m := &Model{
		Content:       p.Content,
		Files:         filesJSON,
		Color:         p.Color,
		Shared:        p.Shared,
		ParentID:      p.ParentID,
		ChildrenCount: 0,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if p.ParentID != nil {
			exists, err := tx.NewSelect().Model((*Model)(nil)).Where("id = ?", *p.ParentID).Exists(ctx)
			if err != nil {
				return notecoreerrs.TransientStore(err, "check parent exists")
			}
			if !exists {
				return notecoreerrs.NotFound("parent post %d not found", *p.ParentID)
			}
		}

		if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
			return notecoreerrs.TransientStore(err, "insert post")
		}

		if err := s.linkHashtags(ctx, tx, m.ID, tags.ExtractHashtags(p.Content)); err != nil {
			return err
		}

		if p.ParentID != nil {
			if err := s.bumpChildrenCount(ctx, tx, *p.ParentID, 1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// linkHashtags replaces postID's tag links with find-or-created tags
// for the given hashtag names, creating missing tag rows inside tx so
// the whole post write stays one transaction.
func (s *Store) linkHashtags(ctx context.Context, tx bun.Tx, postID int64, names []string) error {
	if _, err := tx.NewDelete().Table("tag_post").Where("post_id = ?", postID).Exec(ctx); err != nil {
		return notecoreerrs.TransientStore(err, "clear tag links")
	}
	for _, name := range names {
		ts := nowMS()
		tag := &tags.Model{Name: name, CreatedAt: ts, UpdatedAt: ts}
		if _, err := tx.NewInsert().Model(tag).On("CONFLICT (name) DO NOTHING").Exec(ctx); err != nil {
			return notecoreerrs.TransientStore(err, "find_or_create tag")
		}
		if tag.ID == 0 {
			if err := tx.NewSelect().Model(tag).Where("name = ?", name).Scan(ctx); err != nil {
				return notecoreerrs.TransientStore(err, "find tag by name")
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tag_post (tag_id, post_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			tag.ID, postID,
		); err != nil {
			return notecoreerrs.TransientStore(err, "link tag to post")
		}
	}
	return nil
}

func (s *Store) bumpChildrenCount(ctx context.Context, tx bun.Tx, parentID int64, delta int) error {
	_, err := tx.NewUpdate().
		Model((*Model)(nil)).
		Set("children_count = children_count + ?", delta).
		Where("id = ?", parentID).
		Exec(ctx)
	if err != nil {
		return notecoreerrs.TransientStore(err, "update parent children_count")
	}
	return nil
}

// FindByID loads a live (non-deleted) post by id.
func (s *Store) FindByID(ctx context.Context, id int64) (*Model, error) {
	m := new(Model)
	err := s.db.NewSelect().Model(m).Where("id = ? AND deleted_at IS NULL", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notecoreerrs.NotFound("post %d not found", id)
	}
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "find post by id")
	}
	return m, nil
}

// Update applies the set of present fields in p to the post at id.
// content changes recompute the linked hashtags; parent_id changes
// adjust the old/new parent's children_count only on a nil<->non-nil
// transition, matching the reference update semantics.
func (s *Store) Update(ctx context.Context, id int64, p UpdateParams) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m := new(Model)
		err := tx.NewSelect().Model(m).Where("id = ? AND deleted_at IS NULL", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return notecoreerrs.NotFound("post %d not found", id)
		}
		if err != nil {
			return notecoreerrs.TransientStore(err, "load post for update")
		}

		if content, ok := p.Content.Get(); ok && content != m.Content {
			m.Content = content
			if err := s.linkHashtags(ctx, tx, m.ID, tags.ExtractHashtags(content)); err != nil {
				return err
			}
		}
		if shared, ok := p.Shared.Get(); ok {
			m.Shared = shared
		}
		if files, ok := p.Files.Get(); ok {
			encoded, err := encodeFiles(files)
			if err != nil {
				return notecoreerrs.Validation("%v", err)
			}
			m.Files = encoded
		} else if p.Files.Null() {
			m.Files = ""
		}
		if color, ok := p.Color.Get(); ok {
			if err := ValidateColor(color); err != nil {
				return err
			}
			m.Color = color
		} else if p.Color.Null() {
			m.Color = ""
		}
		if p.ParentID.Present() {
			newParent, _ := p.ParentID.Get()
			switch {
			case m.ParentID != nil && newParent == nil:
				if err := s.bumpChildrenCount(ctx, tx, *m.ParentID, -1); err != nil {
					return err
				}
			case m.ParentID == nil && newParent != nil:
				if err := s.bumpChildrenCount(ctx, tx, *newParent, 1); err != nil {
					return err
				}
			}
			m.ParentID = newParent
		}

		m.UpdatedAt = nowMS()
		if _, err := tx.NewUpdate().Model(m).WherePK().Exec(ctx); err != nil {
			return notecoreerrs.TransientStore(err, "save updated post")
		}
		return nil
	})
}

// Delete soft-deletes a post (hard=false) or permanently removes its
// row (hard=true). Soft delete decrements the parent's children_count
// when parented; hard delete does not, matching the reference model.
func (s *Store) Delete(ctx context.Context, id int64, hard bool) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m := new(Model)
		err := tx.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return notecoreerrs.NotFound("post %d not found", id)
		}
		if err != nil {
			return notecoreerrs.TransientStore(err, "load post for delete")
		}

		if hard {
			if _, err := tx.NewDelete().Model((*Model)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
				return notecoreerrs.TransientStore(err, "hard delete post")
			}
			return nil
		}

		if m.ParentID != nil {
			if err := s.bumpChildrenCount(ctx, tx, *m.ParentID, -1); err != nil {
				return err
			}
		}
		ts := nowMS()
		m.DeletedAt = &ts
		m.UpdatedAt = ts
		if _, err := tx.NewUpdate().Model(m).Column("deleted_at", "updated_at").WherePK().Exec(ctx); err != nil {
			return notecoreerrs.TransientStore(err, "soft delete post")
		}
		return nil
	})
}

// Restore clears deleted_at on a soft-deleted post, incrementing its
// parent's children_count when parented.
func (s *Store) Restore(ctx context.Context, id int64) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m := new(Model)
		err := tx.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return notecoreerrs.NotFound("post %d not found", id)
		}
		if err != nil {
			return notecoreerrs.TransientStore(err, "load post for restore")
		}

		if m.ParentID != nil {
			if err := s.bumpChildrenCount(ctx, tx, *m.ParentID, 1); err != nil {
				return err
			}
		}
		m.DeletedAt = nil
		m.UpdatedAt = nowMS()
		if _, err := tx.NewUpdate().Model(m).Column("deleted_at", "updated_at").WherePK().Exec(ctx); err != nil {
			return notecoreerrs.TransientStore(err, "restore post")
		}
		return nil
	})
}

// ClearAll permanently removes every soft-deleted post and returns
// their ids, so the caller can deindex them.
func (s *Store) ClearAll(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().Model((*Model)(nil)).Column("id").Where("deleted_at IS NOT NULL").Scan(ctx, &ids)
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "list posts to clear")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.db.NewDelete().Model((*Model)(nil)).Where("deleted_at IS NOT NULL").Exec(ctx); err != nil {
		return nil, notecoreerrs.TransientStore(err, "clear deleted posts")
	}
	return ids, nil
}

// PurgeDeletedBefore permanently removes every post whose deleted_at
// is older than cutoffMS and returns their ids.
func (s *Store) PurgeDeletedBefore(ctx context.Context, cutoffMS int64) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().Model((*Model)(nil)).Column("id").
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoffMS).
		Scan(ctx, &ids)
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "list posts past retention")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.db.NewDelete().Model((*Model)(nil)).
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoffMS).
		Exec(ctx); err != nil {
		return nil, notecoreerrs.TransientStore(err, "purge posts past retention")
	}
	return ids, nil
}

// Count returns the number of live posts.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*Model)(nil)).Where("deleted_at IS NULL").Count(ctx)
	if err != nil {
		return 0, notecoreerrs.TransientStore(err, "count posts")
	}
	return n, nil
}

// toPost converts a row plus its preloaded tag names into the external
// Post shape.
func toPost(m *Model, tagNames []string) Post {
	return Post{
		ID:            m.ID,
		Content:       m.Content,
		Files:         decodeFiles(m.Files),
		Color:         m.Color,
		Shared:        m.Shared,
		ParentID:      m.ParentID,
		ChildrenCount: m.ChildrenCount,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		Tags:          tagNames,
	}
}

// loadTagNames batches tag names for a set of post ids into a map.
func (s *Store) loadTagNames(ctx context.Context, db bun.IDB, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []struct {
		PostID int64  `bun:"post_id"`
		Name   string `bun:"name"`
	}
	err := db.NewSelect().
		Table("tag_post").
		ColumnExpr("tag_post.post_id, tags.name").
		Join("JOIN tags ON tags.id = tag_post.tag_id").
		Where("tag_post.post_id IN (?)", bun.In(ids)).
		OrderExpr("tags.name").
		Scan(ctx, &rows)
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "load tag names for posts")
	}
	for _, r := range rows {
		out[r.PostID] = append(out[r.PostID], r.Name)
	}
	return out, nil
}

// FindByIDs loads every live post among ids, with tags preloaded in a
// single follow-up query to avoid N+1 lookups.
func (s *Store) FindByIDs(ctx context.Context, ids []int64) ([]Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []*Model
	err := s.db.NewSelect().Model(&models).
		Where("deleted_at IS NULL AND id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "find posts by ids")
	}

	modelIDs := make([]int64, len(models))
	for i, m := range models {
		modelIDs[i] = m.ID
	}
	tagNames, err := s.loadTagNames(ctx, s.db, modelIDs)
	if err != nil {
		return nil, err
	}

	out := make([]Post, len(models))
	for i, m := range models {
		out[i] = toPost(m, tagNames[m.ID])
	}
	return out, nil
}

// FilterPosts applies every predicate in f, in the reference filter
// order, and returns at most f.PerPage posts.
func (s *Store) FilterPosts(ctx context.Context, f FilterParams) ([]Post, error) {
	q := s.db.NewSelect().Model((*Model)(nil))

	if f.Deleted {
		q = q.Where("deleted_at IS NOT NULL")
	} else {
		q = q.Where("deleted_at IS NULL")
	}
	if f.ParentID != nil {
		q = q.Where("parent_id = ?", *f.ParentID)
	}
	if f.Color != "" {
		q = q.Where("color = ?", f.Color)
	}
	if f.Tag != "" {
		q = q.Where(
			"id IN (SELECT tag_post.post_id FROM tag_post JOIN tags ON tags.id = tag_post.tag_id WHERE tags.name = ? OR tags.name LIKE ?)",
			f.Tag, f.Tag+"/%",
		)
	}
	if f.StartDate != nil {
		q = q.Where("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("created_at <= ?", *f.EndDate)
	}
	if f.Shared != nil {
		q = q.Where("shared = ?", *f.Shared)
	}
	if f.HasFiles != nil {
		if *f.HasFiles {
			q = q.Where("files IS NOT NULL AND files != ''")
		} else {
			q = q.Where("files IS NULL OR files = ''")
		}
	}

	orderBy := f.OrderBy
	if orderBy == "" {
		orderBy = OrderByCreatedAt
	}
	direction := "DESC"
	if f.Ascending {
		direction = "ASC"
	}
	q = q.OrderExpr(string(orderBy) + " " + direction)

	if f.Cursor != nil {
		if f.Ascending {
			q = q.Where(string(orderBy)+" > ?", *f.Cursor)
		} else {
			q = q.Where(string(orderBy)+" < ?", *f.Cursor)
		}
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	q = q.Limit(perPage)

	var models []*Model
	if err := q.Scan(ctx, &models); err != nil {
		return nil, notecoreerrs.TransientStore(err, "filter posts")
	}

	ids := make([]int64, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	tagNames, err := s.loadTagNames(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Post, len(models))
	for i, m := range models {
		out[i] = toPost(m, tagNames[m.ID])
	}
	return out, nil
}

// DailyCounts buckets live posts created between startMS and endMS
// (inclusive, local-offset-adjusted) into one count per calendar day,
// where offsetSeconds is the client's UTC offset.
func (s *Store) DailyCounts(ctx context.Context, startMS, endMS int64, offsetSeconds int) ([]int, error) {
	var rows []struct {
		Date  string `bun:"date"`
		Count int    `bun:"count"`
	}
	err := s.db.NewRaw(`
		SELECT date(created_at / 1000 + ?, 'unixepoch') AS date, COUNT(id) AS count
		FROM posts
		WHERE deleted_at IS NULL AND created_at BETWEEN ? AND ?
		GROUP BY date
	`, offsetSeconds, startMS, endMS).Scan(ctx, &rows)
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "get_daily_counts")
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Date] = r.Count
	}

	start := time.UnixMilli(startMS).UTC()
	end := time.UnixMilli(endMS).UTC()
	days := int(end.Sub(start).Hours()/24) + 1
	out := make([]int, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, counts[day])
	}
	return out, nil
}

// ActiveDays counts the distinct calendar days (UTC) that have at
// least one live post.
func (s *Store) ActiveDays(ctx context.Context) (int, error) {
	var n int
	err := s.db.NewRaw(`
		SELECT COUNT(DISTINCT date(created_at / 1000, 'unixepoch'))
		FROM posts
		WHERE deleted_at IS NULL
	`).Scan(ctx, &n)
	if err != nil {
		return 0, notecoreerrs.TransientStore(err, "get_active_days")
	}
	return n, nil
}
