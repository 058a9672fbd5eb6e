// Package fulltext implements the bilingual full-text index: an
// inverted index maintained on a kv.Store, with TF-IDF scoring and
// query-coverage weighting, built over a Redis-compatible key-value
// surface instead of a direct Redis client.
package fulltext

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"notecore/internal/analyzer"
	"notecore/internal/errs"
	"notecore/internal/kv"
)

// Hit is one scored search result.
type Hit struct {
	ID    int64
	Score float64
}

// Index is the bilingual full-text index over a kv.Store.
type Index struct {
	store    kv.Store
	prefix   string
	analyzer *analyzer.Analyzer
}

// New builds an Index. prefix namespaces every key this Index writes,
// e.g. "fts:".
func New(store kv.Store, prefix string, a *analyzer.Analyzer) *Index {
	return &Index{store: store, prefix: prefix, analyzer: a}
}

func (idx *Index) docCountKey() string        { return idx.prefix + "doc:count" }
func (idx *Index) docTokensKey(id int64) string { return fmt.Sprintf("%sdoc:%d:tokens", idx.prefix, id) }
func (idx *Index) tokenDocsKey(token string) string { return idx.prefix + "token:" + token + ":docs" }

// IsIndexed reports whether id currently has a stored token map.
func (idx *Index) IsIndexed(ctx context.Context, id int64) (bool, error) {
	_, ok, err := idx.store.Get(ctx, idx.docTokensKey(id))
	return ok, err
}

// frequencyMap counts token occurrences, preserving the "duplicates
// matter" contract of Analyzer's output.
type frequencyMap map[string]int

func (idx *Index) analyze(text string) frequencyMap {
	tokens := idx.analyzer.Analyze(text)
	f := make(frequencyMap, len(tokens))
	for _, t := range tokens {
		f[t]++
	}
	return f
}

func serializeFreq(f frequencyMap) string {
	tokens := make([]string, 0, len(f))
	for t := range f {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)

	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, t+"\x1f"+strconv.Itoa(f[t]))
	}
	return strings.Join(parts, "\x1e")
}

func deserializeFreq(s string) frequencyMap {
	f := make(frequencyMap)
	if s == "" {
		return f
	}
	for _, part := range strings.Split(s, "\x1e") {
		name, countStr, ok := strings.Cut(part, "\x1f")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(countStr)
		if err != nil {
			continue
		}
		f[name] = n
	}
	return f
}

func (idx *Index) loadTokens(ctx context.Context, tx kv.Tx, id int64) (frequencyMap, bool, error) {
	raw, ok, err := tx.Get(ctx, idx.docTokensKey(id))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return deserializeFreq(raw), true, nil
}

// Index indexes text under id. If id is already indexed this delegates
// to Reindex. Text that analyzes to no tokens is a no-op.
func (idx *Index) Index(ctx context.Context, id int64, text string) error {
	already, err := idx.IsIndexed(ctx, id)
	if err != nil {
		return err
	}
	if already {
		return idx.Reindex(ctx, id, text)
	}

	f := idx.analyze(text)
	if len(f) == 0 {
		return nil
	}

	return idx.store.Pipeline(ctx, func(tx kv.Tx) error {
		if err := tx.Set(ctx, idx.docTokensKey(id), serializeFreq(f)); err != nil {
			return err
		}
		if _, err := tx.Incr(ctx, idx.docCountKey()); err != nil {
			return err
		}
		for token := range f {
			if err := tx.SetAdd(ctx, idx.tokenDocsKey(token), strconv.FormatInt(id, 10)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reindex replaces the token map for id, updating posting sets for the
// symmetric difference only. doc:count is left untouched. If id is not
// yet indexed, delegates to Index; if the new text analyzes empty,
// delegates to Deindex.
func (idx *Index) Reindex(ctx context.Context, id int64, text string) error {
	already, err := idx.IsIndexed(ctx, id)
	if err != nil {
		return err
	}
	if !already {
		return idx.Index(ctx, id, text)
	}

	newF := idx.analyze(text)
	if len(newF) == 0 {
		return idx.Deindex(ctx, id)
	}

	return idx.store.Pipeline(ctx, func(tx kv.Tx) error {
		oldF, ok, err := idx.loadTokens(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok || len(oldF) == 0 {
			return errs.InvariantViolation("reindex: post %d has no stored token map", id)
		}

		if err := tx.Set(ctx, idx.docTokensKey(id), serializeFreq(newF)); err != nil {
			return err
		}

		idStr := strconv.FormatInt(id, 10)
		for token := range oldF {
			if _, stillPresent := newF[token]; !stillPresent {
				if err := tx.SetRemove(ctx, idx.tokenDocsKey(token), idStr); err != nil {
					return err
				}
			}
		}
		for token := range newF {
			if _, wasPresent := oldF[token]; !wasPresent {
				if err := tx.SetAdd(ctx, idx.tokenDocsKey(token), idStr); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Deindex removes id from the index entirely. A second Deindex call on
// an id that is no longer indexed is treated as an idempotent no-op,
// not an error: only the first of two concurrent deindexes observes a
// real stored map to remove, and the invariant it protects is already
// satisfied once that first call completes.
func (idx *Index) Deindex(ctx context.Context, id int64) error {
	return idx.store.Pipeline(ctx, func(tx kv.Tx) error {
		oldF, ok, err := idx.loadTokens(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if err := tx.Delete(ctx, idx.docTokensKey(id)); err != nil {
			return err
		}
		if _, err := tx.Decr(ctx, idx.docCountKey()); err != nil {
			return err
		}
		idStr := strconv.FormatInt(id, 10)
		for token := range oldF {
			if err := tx.SetRemove(ctx, idx.tokenDocsKey(token), idStr); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearAllIndexes deletes every key this Index owns.
func (idx *Index) ClearAllIndexes(ctx context.Context) error {
	docKeys, err := idx.store.Keys(ctx, idx.prefix+"doc:*")
	if err != nil {
		return err
	}
	tokenKeys, err := idx.store.Keys(ctx, idx.prefix+"token:*")
	if err != nil {
		return err
	}
	all := append(docKeys, tokenKeys...)
	if len(all) == 0 {
		return nil
	}
	return idx.store.Delete(ctx, all...)
}

// Search analyzes query into tokens Q and ranks candidates. partial
// selects union (true) vs intersection (false) of per-token posting
// sets. Ties in score break by descending id. limit <= 0 means
// unbounded.
//
// The returned token list, and the list scoreDocument sums over,
// preserve duplicates exactly as Analyze produced them: a repeated
// query term is meant to contribute its norm_tf*idf term to the score
// once per occurrence (and once per occurrence to the coverage
// denominator), matching the original's _rank. Only the posting-set
// and document-frequency lookups are deduped, since those are keyed by
// token string and a repeated lookup would just overwrite the same map
// entry.
func (idx *Index) Search(ctx context.Context, query string, partial bool, limit int) ([]string, []Hit, error) {
	tokens := idx.analyzer.Analyze(query)
	if len(tokens) == 0 {
		return tokens, nil, nil
	}
	uniqueTokens := dedupeTokens(tokens)

	postingSets := make(map[string]map[int64]struct{}, len(uniqueTokens))
	for _, t := range uniqueTokens {
		members, err := idx.store.SetMembers(ctx, idx.tokenDocsKey(t))
		if err != nil {
			return tokens, nil, err
		}
		set := make(map[int64]struct{}, len(members))
		for _, m := range members {
			id, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			set[id] = struct{}{}
		}
		postingSets[t] = set
	}

	var candidates map[int64]struct{}
	if partial {
		candidates = unionSets(postingSets)
	} else {
		candidates = intersectSets(postingSets)
	}
	if len(candidates) == 0 {
		return tokens, nil, nil
	}

	hits, err := idx.rank(ctx, tokens, uniqueTokens, candidates)
	if err != nil {
		return tokens, nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID > hits[j].ID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return tokens, hits, nil
}

// rank computes TF-IDF + coverage scores for every candidate in a
// single pipelined round trip: one doc:count read, one doc tokens read
// per candidate, one set_card read per unique query token. scoringTokens
// carries duplicates (see Search's doc comment); uniqueTokens only
// drives the set_card lookups.
func (idx *Index) rank(ctx context.Context, scoringTokens, uniqueTokens []string, candidates map[int64]struct{}) ([]Hit, error) {
	var (
		totalDocs int64
		docTokens = make(map[int64]frequencyMap, len(candidates))
		df        = make(map[string]int64, len(uniqueTokens))
	)

	err := idx.store.Pipeline(ctx, func(tx kv.Tx) error {
		raw, ok, err := tx.Get(ctx, idx.docCountKey())
		if err != nil {
			return err
		}
		if ok {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return errs.InvariantViolation("doc:count is not an integer")
			}
			totalDocs = n
		}

		for id := range candidates {
			raw, ok, err := tx.Get(ctx, idx.docTokensKey(id))
			if err != nil {
				return err
			}
			if ok {
				docTokens[id] = deserializeFreq(raw)
			} else {
				docTokens[id] = frequencyMap{}
			}
		}

		for _, t := range uniqueTokens {
			card, err := tx.SetCard(ctx, idx.tokenDocsKey(t))
			if err != nil {
				return err
			}
			df[t] = card
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(candidates))
	for id, freq := range docTokens {
		score := scoreDocument(scoringTokens, freq, df, totalDocs)
		hits = append(hits, Hit{ID: id, Score: score})
	}
	return hits, nil
}

func scoreDocument(queryTokens []string, freq frequencyMap, df map[string]int64, totalDocs int64) float64 {
	var s float64
	matched := 0
	for _, t := range queryTokens {
		tf := freq[t]
		var normTF float64
		if tf > 0 {
			normTF = 1 + math.Log10(float64(tf))
			matched++
		}
		var idf float64
		if d := df[t]; d > 0 {
			ratio := float64(totalDocs) / float64(d)
			if ratio < 1 {
				ratio = 1
			}
			idf = math.Log10(ratio)
		}
		s += normTF * idf
	}

	var lengthSum int
	for _, count := range freq {
		lengthSum += count
	}
	if lengthSum > 0 {
		s /= math.Sqrt(float64(lengthSum))
	}

	coverage := float64(matched) / float64(len(queryTokens))
	if coverage == 1.0 {
		s *= 2.0
	} else {
		s *= coverage
	}
	return s
}

func dedupeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func unionSets(sets map[string]map[int64]struct{}) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, set := range sets {
		for id := range set {
			out[id] = struct{}{}
		}
	}
	return out
}

func intersectSets(sets map[string]map[int64]struct{}) map[int64]struct{} {
	var smallest map[int64]struct{}
	for _, set := range sets {
		if smallest == nil || len(set) < len(smallest) {
			smallest = set
		}
	}
	if smallest == nil {
		return nil
	}

	out := make(map[int64]struct{})
	for id := range smallest {
		inAll := true
		for _, set := range sets {
			if _, ok := set[id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out[id] = struct{}{}
		}
	}
	return out
}
