package retrieval

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/storage"
)

// bm25K1 and bm25B are the standard Okapi BM25 tuning constants.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// indexTTL is how long a built index snapshot is trusted before a rebuild is
// forced regardless of whether the store's row count changed.
const indexTTL = 5 * time.Minute

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases and splits on non-alphanumeric runs. Shared by index
// build and query scoring so both sides of a match agree on vocabulary.
func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// docStats is one document's term-frequency table plus its length, the unit
// BM25 scoring needs per (document, term) pair.
type docStats struct {
	termFreq map[string]int
	length   int
}

// corpus is a complete BM25-Okapi posting set over one text representation
// of every decision (full record, bridge.structure, or bridge.function).
type corpus struct {
	docs      map[string]docStats
	docFreq   map[string]int // number of documents containing each term
	avgLength float64
	n         int
}

func buildCorpus(decisions []*model.Decision, textFor func(*model.Decision) string) corpus {
	c := corpus{
		docs:    make(map[string]docStats, len(decisions)),
		docFreq: make(map[string]int),
	}
	var totalLength int
	for _, d := range decisions {
		tokens := tokenize(textFor(d))
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		c.docs[d.ID] = docStats{termFreq: tf, length: len(tokens)}
		totalLength += len(tokens)
		for tok := range tf {
			c.docFreq[tok]++
		}
	}
	c.n = len(decisions)
	if c.n > 0 {
		c.avgLength = float64(totalLength) / float64(c.n)
	}
	return c
}

// score returns the raw BM25-Okapi relevance of query against every document
// in the corpus that shares at least one term with it. Higher is more
// relevant; the range is unbounded.
func (c corpus) score(query string) map[string]float64 {
	terms := tokenize(query)
	if len(terms) == 0 || c.n == 0 {
		return nil
	}

	idf := make(map[string]float64, len(terms))
	for _, t := range terms {
		df := float64(c.docFreq[t])
		idf[t] = math.Log((float64(c.n)-df+0.5)/(df+0.5) + 1)
	}

	avg := c.avgLength
	if avg == 0 {
		avg = 1
	}

	scores := make(map[string]float64)
	for id, stats := range c.docs {
		var s float64
		for _, t := range terms {
			f := float64(stats.termFreq[t])
			if f == 0 {
				continue
			}
			denom := f + bm25K1*(1-bm25B+bm25B*float64(stats.length)/avg)
			s += idf[t] * (f * (bm25K1 + 1)) / denom
		}
		if s > 0 {
			scores[id] = s
		}
	}
	return scores
}

// snapshot is the immutable build of all three BM25 corpora the keyword
// retrieval path searches. A rebuild produces an entirely new snapshot; there
// is no in-place mutation of a published one, so concurrent readers always
// see either the old or the new index, never a partial one.
type snapshot struct {
	full      corpus
	structure corpus
	function  corpus
	builtAt   time.Time
	storeSize int
}

// forSide returns the corpus matching the requested bridge side, falling
// back to the full-record corpus for an unset side. "both" is resolved one
// level up by averaging the structure and function scores.
func (s *snapshot) forSide(side model.BridgeSide) corpus {
	switch side {
	case model.BridgeSideStructure:
		return s.structure
	case model.BridgeSideFunction:
		return s.function
	default:
		return s.full
	}
}

// Keyword is the in-memory BM25-Okapi keyword index: a snapshot rebuilt
// lazily from the Decision Store when the cached build ages past indexTTL or
// the store's row count has moved since the last build, and published with a
// single reference swap so concurrent queries never observe a partial index.
type Keyword struct {
	store *storage.Store

	mu sync.Mutex // serializes rebuilds; readers never take it

	current *snapshot
	curMu   sync.RWMutex
}

// NewKeyword creates a keyword index over store. The first query triggers
// the initial build.
func NewKeyword(store *storage.Store) *Keyword {
	return &Keyword{store: store}
}

// Ensure rebuilds the index if it is missing, stale, or the store's row
// count has changed since the last build. Safe for concurrent callers: only
// one rebuild runs at a time, and readers keep using the prior snapshot
// while it runs.
func (k *Keyword) Ensure(ctx context.Context) error {
	snap := k.get()
	count, err := k.store.Count(ctx)
	if err != nil {
		return err
	}
	if snap != nil && time.Since(snap.builtAt) < indexTTL && snap.storeSize == count {
		return nil
	}
	return k.rebuild(ctx, count)
}

// Invalidate forces the next Ensure to rebuild regardless of TTL or row
// count, used after a bulk reindex operation.
func (k *Keyword) Invalidate() {
	k.curMu.Lock()
	k.current = nil
	k.curMu.Unlock()
}

func (k *Keyword) get() *snapshot {
	k.curMu.RLock()
	defer k.curMu.RUnlock()
	return k.current
}

func (k *Keyword) rebuild(ctx context.Context, count int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	// Another goroutine may have rebuilt while we waited for the lock.
	if snap := k.get(); snap != nil && time.Since(snap.builtAt) < indexTTL && snap.storeSize == count {
		return nil
	}

	var decisions []*model.Decision
	if err := k.store.All(ctx, func(d *model.Decision) error {
		decisions = append(decisions, d)
		return nil
	}); err != nil {
		return err
	}

	next := &snapshot{
		full:      buildCorpus(decisions, fullText),
		structure: buildCorpus(decisions, structureText),
		function:  buildCorpus(decisions, functionText),
		builtAt:   time.Now(),
		storeSize: count,
	}

	k.curMu.Lock()
	k.current = next
	k.curMu.Unlock()
	return nil
}

// Search scores query against the bridge side's corpus (or the full-record
// corpus when side is empty), returning the top n raw BM25 scores. "both"
// averages the structure and function scores for decisions that appear in
// either.
func (k *Keyword) Search(ctx context.Context, query string, side model.BridgeSide, n int) ([]Hit, error) {
	if err := k.Ensure(ctx); err != nil {
		return nil, err
	}
	snap := k.get()
	if snap == nil {
		return nil, nil
	}

	var raw map[string]float64
	if side == model.BridgeSideBoth {
		raw = averageScores(snap.structure.score(query), snap.function.score(query))
	} else {
		raw = snap.forSide(side).score(query)
	}

	hits := make([]Hit, 0, len(raw))
	for id, score := range raw {
		hits = append(hits, Hit{ID: id, Score: score})
	}
	sortHitsDesc(hits)
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

func averageScores(a, b map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(a)+len(b))
	for id, v := range a {
		out[id] += v
	}
	for id, v := range b {
		out[id] += v
	}
	for id := range out {
		if _, okA := a[id]; okA {
			if _, okB := b[id]; okB {
				out[id] /= 2
				continue
			}
		}
	}
	return out
}

func functionText(d *model.Decision) string {
	if d.Bridge.Function != "" {
		return d.Bridge.Function
	}
	return fullText(d)
}

func structureText(d *model.Decision) string {
	if d.Bridge.Structure != "" {
		return d.Bridge.Structure
	}
	return fullText(d)
}

// fullText concatenates the fields the keyword index covers: decision text,
// category, tags, pattern, context, reason text, and both bridge sides.
func fullText(d *model.Decision) string {
	var b strings.Builder
	b.WriteString(d.DecisionText)
	b.WriteByte(' ')
	b.WriteString(string(d.Category))
	b.WriteByte(' ')
	b.WriteString(strings.Join(d.Tags, " "))
	b.WriteByte(' ')
	b.WriteString(d.Pattern)
	b.WriteByte(' ')
	b.WriteString(d.Context)
	for _, r := range d.Reasons {
		b.WriteByte(' ')
		b.WriteString(r.Text)
	}
	b.WriteByte(' ')
	b.WriteString(d.Bridge.Structure)
	b.WriteByte(' ')
	b.WriteString(d.Bridge.Function)
	return b.String()
}
