package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"notecore/internal/errs"
	"notecore/internal/optional"
	"notecore/internal/posts"
	"notecore/internal/tags"
)

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Password != s.cfg.SecretKey {
		writeError(w, errs.Validation("wrong password"))
		return
	}
	writeNoContent(w)
}

func (s *Server) handleGetTags(w http.ResponseWriter, r *http.Request) {
	all, err := s.tags.GetAllWithPostCount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

type stickTagRequest struct {
	Name   string `json:"name"`
	Sticky bool   `json:"sticky"`
}

func (s *Server) handleStickTag(w http.ResponseWriter, r *http.Request) {
	var req stickTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.tags.InsertOrUpdate(r.Context(), req.Name, req.Sticky); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

type renameTagRequest struct {
	Name    string `json:"name"`
	NewName string `json:"new_name"`
}

func (s *Server) handleRenameTag(w http.ResponseWriter, r *http.Request) {
	var req renameTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := tags.ValidateName(req.NewName); err != nil {
		writeError(w, err)
		return
	}
	if err := s.tags.RenameOrMerge(r.Context(), req.Name, req.NewName); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tag, err := s.tags.FindByName(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	if tag == nil {
		writeError(w, errs.NotFound("tag not found"))
		return
	}
	if err := s.tags.Delete(r.Context(), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

type postPagination struct {
	Posts  []posts.Post `json:"posts"`
	Cursor int64        `json:"cursor"`
	Size   int          `json:"size"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if query == "" {
		writeError(w, errs.Validation("query must not be empty"))
		return
	}
	partial := q.Get("partial") == "true"
	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	tokens, hits, err := s.index.Search(r.Context(), query, partial, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(hits) == 0 {
		writeJSON(w, http.StatusOK, postPagination{Posts: []posts.Post{}, Cursor: -1, Size: 0})
		return
	}

	ids := make([]int64, len(hits))
	scores := make(map[int64]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Score
	}

	found, err := s.posts.FindByIDs(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}

	result := make([]posts.Post, 0, len(found))
	for _, p := range found {
		score := scores[p.ID]
		p.Content = markTokensInHTML(tokens, p.Content)
		p.Score = &score
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if *result[i].Score != *result[j].Score {
			return *result[i].Score > *result[j].Score
		}
		return result[i].CreatedAt > result[j].CreatedAt
	})

	writeJSON(w, http.StatusOK, postPagination{Posts: result, Cursor: -1, Size: len(result)})
}

func (s *Server) handleGetPosts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilterParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f.PerPage = s.cfg.PostsPerPage

	found, err := s.posts.FilterPosts(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}

	cursor := int64(-1)
	if len(found) > 0 {
		cursor = found[len(found)-1].CreatedAt
	}
	writeJSON(w, http.StatusOK, postPagination{Posts: found, Cursor: cursor, Size: len(found)})
}

func parseFilterParams(r *http.Request) (posts.FilterParams, error) {
	q := r.URL.Query()
	var f posts.FilterParams

	if v := q.Get("cursor"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errs.Validation("invalid cursor")
		}
		f.Cursor = &n
	}
	f.Deleted = q.Get("deleted") == "true"
	if v := q.Get("parent_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errs.Validation("invalid parent_id")
		}
		f.ParentID = &n
	}
	f.Color = q.Get("color")
	if f.Color != "" {
		if err := posts.ValidateColor(f.Color); err != nil {
			return f, err
		}
	}
	f.Tag = q.Get("tag")
	if v := q.Get("start_date"); v != "" {
		n, _ := strconv.ParseInt(v, 10, 64)
		f.StartDate = &n
	}
	if v := q.Get("end_date"); v != "" {
		n, _ := strconv.ParseInt(v, 10, 64)
		f.EndDate = &n
	}
	if v := q.Get("shared"); v != "" {
		b := v == "true"
		f.Shared = &b
	}
	if v := q.Get("has_files"); v != "" {
		b := v == "true"
		f.HasFiles = &b
	}
	if v := q.Get("order_by"); v != "" {
		f.OrderBy = posts.OrderField(v)
	}
	f.Ascending = q.Get("ascending") == "true"
	return f, nil
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, errs.Validation("invalid id"))
		return
	}
	found, err := s.posts.FindByIDs(r.Context(), []int64{id})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(found) == 0 {
		writeError(w, errs.NotFound("post not found"))
		return
	}
	writeJSON(w, http.StatusOK, found[0])
}

type createPostRequest struct {
	Content  string       `json:"content"`
	Files    []posts.File `json:"files"`
	Color    string       `json:"color"`
	Shared   bool         `json:"shared"`
	ParentID *int64       `json:"parent_id"`
}

type creationResponse struct {
	ID        int64 `json:"id"`
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Content == "" {
		writeError(w, errs.Validation("content must not be empty"))
		return
	}

	m, err := s.posts.Create(r.Context(), posts.CreateParams{
		Content:  req.Content,
		Files:    req.Files,
		Color:    req.Color,
		Shared:   req.Shared,
		ParentID: req.ParentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if s.background != nil {
		if err := s.background.Index(r.Context(), m.ID, req.Content); err != nil {
			s.log.Error("enqueue index job", "id", m.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, creationResponse{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt})
}

type updatePostRequest struct {
	ID       int64                            `json:"id"`
	Content  optional.Value[string]           `json:"content"`
	Shared   optional.Value[bool]             `json:"shared"`
	Files    optional.Value[[]posts.File]     `json:"files"`
	Color    optional.Value[string]           `json:"color"`
	ParentID optional.Value[*int64]           `json:"parent_id"`
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req updatePostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := s.posts.Update(r.Context(), req.ID, posts.UpdateParams{
		Content:  req.Content,
		Shared:   req.Shared,
		Files:    req.Files,
		Color:    req.Color,
		ParentID: req.ParentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if content, ok := req.Content.Get(); ok && s.background != nil {
		if err := s.background.Reindex(r.Context(), req.ID, content); err != nil {
			s.log.Error("enqueue reindex job", "id", req.ID, "error", err)
		}
	}

	writeNoContent(w)
}

type deletePostRequest struct {
	ID   int64 `json:"id"`
	Hard bool  `json:"hard"`
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	var req deletePostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.posts.Delete(r.Context(), req.ID, req.Hard); err != nil {
		writeError(w, err)
		return
	}
	if req.Hard && s.background != nil {
		if err := s.background.Deindex(r.Context(), req.ID); err != nil {
			s.log.Error("enqueue deindex job", "id", req.ID, "error", err)
		}
	}
	writeNoContent(w)
}

type idRequest struct {
	ID int64 `json:"id"`
}

func (s *Server) handleRestorePost(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.posts.Restore(r.Context(), req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleClearPosts(w http.ResponseWriter, r *http.Request) {
	ids, err := s.posts.ClearAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if s.background != nil {
		for _, id := range ids {
			if err := s.background.Deindex(r.Context(), id); err != nil {
				s.log.Error("enqueue deindex job", "id", id, "error", err)
			}
		}
	}
	writeNoContent(w)
}

func (s *Server) handleDailyPostCounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startMS, err := strconv.ParseInt(q.Get("start_date"), 10, 64)
	if err != nil {
		writeError(w, errs.Validation("invalid start_date"))
		return
	}
	endMS, err := strconv.ParseInt(q.Get("end_date"), 10, 64)
	if err != nil {
		writeError(w, errs.Validation("invalid end_date"))
		return
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		offset, _ = strconv.Atoi(v)
	}

	counts, err := s.posts.DailyCounts(r.Context(), startMS, endMS, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type overallCountsResponse struct {
	PostCount int `json:"post_count"`
	TagCount  int `json:"tag_count"`
	DayCount  int `json:"day_count"`
}

func (s *Server) handleOverallCounts(w http.ResponseWriter, r *http.Request) {
	postCount, err := s.posts.Count(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	allTags, err := s.tags.GetAllWithPostCount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	days, err := s.posts.ActiveDays(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overallCountsResponse{
		PostCount: postCount,
		TagCount:  len(allTags),
		DayCount:  days,
	})
}

// handleRebuildIndexes streams plain-text progress lines as the clear
// and reindex passes run, rather than buffering a single JSON summary:
// the original's generator yields "Indexing...\n" then "Done" around a
// potentially long-running loop so a caller watching the response sees
// it's alive, and this mirrors that by flushing one line per batch too.
func (s *Server) handleRebuildIndexes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)

	writeProgress := func(line string) {
		fmt.Fprint(w, line)
		if flusher != nil {
			flusher.Flush()
		}
	}

	writeProgress("Indexing...\n")

	if err := s.index.ClearAllIndexes(ctx); err != nil {
		writeProgress(fmt.Sprintf("error: %v\n", err))
		return
	}

	const pageSize = 500
	var cursor *int64
	indexed := 0
	for {
		f := posts.FilterParams{PerPage: pageSize, OrderBy: posts.OrderByCreatedAt, Ascending: true, Cursor: cursor}
		batch, err := s.posts.FilterPosts(ctx, f)
		if err != nil {
			writeProgress(fmt.Sprintf("error: %v\n", err))
			return
		}
		if len(batch) == 0 {
			break
		}
		for _, p := range batch {
			if err := s.index.Index(ctx, p.ID, p.Content); err != nil {
				s.log.Error("rebuild index", "id", p.ID, "error", err)
				continue
			}
			indexed++
		}
		writeProgress(fmt.Sprintf("indexed %d\n", indexed))
		last := batch[len(batch)-1].CreatedAt
		cursor = &last
		if len(batch) < pageSize {
			break
		}
	}

	writeProgress("Done")
}
