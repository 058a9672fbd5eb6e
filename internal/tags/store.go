package tags

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	notecoreerrs "notecore/internal/errs"
)

// Store persists tags and their post associations, and implements the
// subtree rename/merge algorithm.
type Store struct {
	db *bun.DB
}

// NewStore builds a Store over db.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func now() int64 { return time.Now().UnixMilli() }

// FindByName looks up a tag row by its unique name.
func (s *Store) FindByName(ctx context.Context, name string) (*Model, error) {
	return findByNameTx(ctx, s.db, name)
}

func findByNameTx(ctx context.Context, db bun.IDB, name string) (*Model, error) {
	m := new(Model)
	err := db.NewSelect().Model(m).Where("name = ?", name).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "find tag by name")
	}
	return m, nil
}

// FindOrCreate looks up a tag by name, inserting it if absent. Relies
// on the unique index on name plus ON CONFLICT DO NOTHING to stay
// idempotent under concurrent creation races.
func (s *Store) FindOrCreate(ctx context.Context, name string) (*Model, error) {
	return findOrCreateTx(ctx, s.db, name)
}

func findOrCreateTx(ctx context.Context, db bun.IDB, name string) (*Model, error) {
	ts := now()
	m := &Model{Name: name, Sticky: false, CreatedAt: ts, UpdatedAt: ts}
	_, err := db.NewInsert().Model(m).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "find_or_create tag")
	}
	if m.ID != 0 {
		return m, nil
	}
	return findByNameTx(ctx, db, name)
}

// InsertOrUpdate upserts a tag by name, overwriting sticky on conflict.
func (s *Store) InsertOrUpdate(ctx context.Context, name string, sticky bool) (*Model, error) {
	ts := now()
	m := &Model{Name: name, Sticky: sticky, CreatedAt: ts, UpdatedAt: ts}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (name) DO UPDATE").
		Set("sticky = EXCLUDED.sticky").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "insert_or_update tag")
	}
	return findByNameTx(ctx, s.db, name)
}

// GetAllWithPostCount returns every tag with the distinct count of
// live posts linked to it or any of its descendants, via a single
// aggregate query.
func (s *Store) GetAllWithPostCount(ctx context.Context) ([]Tag, error) {
	type row struct {
		Name      string `bun:"name"`
		Sticky    bool   `bun:"sticky"`
		PostCount int    `bun:"post_count"`
	}
	var rows []row

	err := s.db.NewRaw(`
WITH tag_posts AS (
	SELECT t.name AS tag_name, p.id AS post_id
	FROM tags t
	JOIN tag_post tp ON tp.tag_id = t.id
	JOIN posts p ON p.id = tp.post_id
	WHERE p.deleted_at IS NULL
)
SELECT
	t.name,
	t.sticky,
	COUNT(DISTINCT tp.post_id) AS post_count
FROM tags t
LEFT JOIN tag_posts tp
	ON tp.tag_name = t.name OR tp.tag_name LIKE (t.name || '/%')
GROUP BY t.name, t.sticky
ORDER BY t.name
`).Scan(ctx, &rows)
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "get_all_with_post_count")
	}

	out := make([]Tag, 0, len(rows))
	for _, r := range rows {
		out = append(out, Tag{Name: r.Name, Sticky: r.Sticky, PostCount: r.PostCount})
	}
	return out, nil
}

// Descendants returns every tag whose name begins with name + "/".
func (s *Store) Descendants(ctx context.Context, db bun.IDB, name string) ([]*Model, error) {
	var models []*Model
	err := db.NewSelect().Model(&models).Where("name LIKE ?", name+"/%").Scan(ctx)
	if err != nil {
		return nil, notecoreerrs.TransientStore(err, "load descendants")
	}
	// LIKE 'name/%' can also match unrelated names that happen to share
	// the prefix textually only by coincidence of '/'; filter precisely.
	filtered := models[:0]
	for _, m := range models {
		if isDescendantName(name, m.Name) {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// RenameOrMerge implements the core subtree rename/merge algorithm:
// reject moves into the tag's own subtree, then for every descendant,
// rename it or merge it into an existing tag with the same computed
// target name, rewriting `>#old<` spans in every linked post's
// content, and finally apply the same operation to the source tag
// itself. The whole operation runs in one transaction.
func (s *Store) RenameOrMerge(ctx context.Context, name, newName string) error {
	if name == newName {
		return nil
	}
	if movesIntoOwnSubtree(name, newName) {
		return notecoreerrs.Validation("cannot move tag %q into its own subtree %q", name, newName)
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		source, err := findOrCreateTx(ctx, tx, name)
		if err != nil {
			return err
		}

		descendants, err := s.Descendants(ctx, tx, name)
		if err != nil {
			return err
		}

		for _, d := range descendants {
			newDescendantName := newName + d.Name[len(name):]
			if err := renameOrMergeOne(ctx, tx, d, newDescendantName); err != nil {
				return err
			}
		}

		return renameOrMergeOne(ctx, tx, source, newName)
	})
}

// renameOrMergeOne applies the rename-or-merge decision for a single
// tag t against targetName: merge into an existing tag with that name,
// or rename t in place.
func renameOrMergeOne(ctx context.Context, tx bun.Tx, t *Model, targetName string) error {
	if t.Name == targetName {
		return nil
	}

	existing, err := findByNameTx(ctx, tx, targetName)
	if err != nil {
		return err
	}
	if existing != nil {
		return mergeTag(ctx, tx, t, existing)
	}
	return renameTag(ctx, tx, t, targetName)
}

// renameTag renames t to newName in place and rewrites every linked
// post's hashtag span.
func renameTag(ctx context.Context, tx bun.Tx, t *Model, newName string) error {
	oldName := t.Name
	t.Name = newName
	t.UpdatedAt = now()
	if _, err := tx.NewUpdate().Model(t).Column("name", "updated_at").WherePK().Exec(ctx); err != nil {
		return notecoreerrs.TransientStore(err, "rename tag")
	}
	return rewritePostContentForTag(ctx, tx, t.ID, oldName, newName)
}

// mergeTag reassigns every post linked to src onto dst (deduping),
// rewrites post content, and deletes src.
func mergeTag(ctx context.Context, tx bun.Tx, src, dst *Model) error {
	oldName, newName := src.Name, dst.Name

	if err := rewritePostContentForTag(ctx, tx, src.ID, oldName, newName); err != nil {
		return err
	}

	// Reassign links, skipping posts already linked to dst.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tag_post (tag_id, post_id)
		SELECT ?, tp.post_id FROM tag_post tp
		WHERE tp.tag_id = ?
		ON CONFLICT (tag_id, post_id) DO NOTHING
	`, dst.ID, src.ID); err != nil {
		return notecoreerrs.TransientStore(err, "reassign tag links")
	}

	if _, err := tx.NewDelete().Model((*Model)(nil)).Where("id = ?", src.ID).Exec(ctx); err != nil {
		return notecoreerrs.TransientStore(err, "delete merged tag")
	}
	return nil
}

// rewritePostContentForTag rewrites the `>#old<` hashtag span in every
// post linked to tagID to `>#new<`.
func rewritePostContentForTag(ctx context.Context, tx bun.Tx, tagID int64, oldName, newName string) error {
	var posts []struct {
		ID      int64  `bun:"id"`
		Content string `bun:"content"`
	}
	err := tx.NewSelect().
		Table("posts").
		ColumnExpr("posts.id, posts.content").
		Join("JOIN tag_post ON tag_post.post_id = posts.id").
		Where("tag_post.tag_id = ?", tagID).
		Scan(ctx, &posts)
	if err != nil {
		return notecoreerrs.TransientStore(err, "load posts for tag rewrite")
	}

	for _, p := range posts {
		rewritten := RewriteHashtagSpan(p.Content, oldName, newName)
		if rewritten == p.Content {
			continue
		}
		if _, err := tx.NewUpdate().
			Table("posts").
			Set("content = ?", rewritten).
			Set("updated_at = ?", now()).
			Where("id = ?", p.ID).
			Exec(ctx); err != nil {
			return notecoreerrs.TransientStore(err, "rewrite post content")
		}
	}
	return nil
}

// Delete soft-deletes every post linked to the tag or any of its
// descendants. The tag rows themselves are not removed.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.setDeletedAt(ctx, name, now())
}

// Restore clears deleted_at on every post linked to the tag or any of
// its descendants.
func (s *Store) Restore(ctx context.Context, name string) error {
	return s.setDeletedAt(ctx, name, 0)
}

func (s *Store) setDeletedAt(ctx context.Context, name string, value int64) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		t, err := findByNameTx(ctx, tx, name)
		if err != nil {
			return err
		}
		if t == nil {
			return notecoreerrs.NotFound("tag %q not found", name)
		}

		query := tx.NewUpdate().
			Table("posts").
			Where("posts.id IN (SELECT post_id FROM tag_post JOIN tags ON tags.id = tag_post.tag_id WHERE tags.name = ? OR tags.name LIKE ?)", name, name+"/%")

		if value == 0 {
			query = query.Set("deleted_at = NULL")
		} else {
			query = query.Set("deleted_at = ?", value)
		}
		query = query.Set("updated_at = ?", now())

		if _, err := query.Exec(ctx); err != nil {
			return notecoreerrs.TransientStore(err, "set deleted_at for tag subtree")
		}
		return nil
	})
}
