package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfatykhov/decisionintel/internal/model"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"use", "redis", "for", "caching"}, tokenize("Use Redis, for caching!"))
}

func sampleDecisions() []*model.Decision {
	return []*model.Decision{
		{ID: "redis001", DecisionText: "Use Redis for caching"},
		{ID: "pg000002", DecisionText: "Use PostgreSQL FTS"},
		{ID: "map000003", DecisionText: "Use in-memory map"},
	}
}

func TestBuildCorpus_ScoresTermOverlap(t *testing.T) {
	c := buildCorpus(sampleDecisions(), fullText)
	scores := c.score("cache server")
	require.Contains(t, scores, "redis001")
	assert.Greater(t, scores["redis001"], 0.0)
}

func TestCorpusScore_RanksMoreOverlappingDocHigher(t *testing.T) {
	c := buildCorpus(sampleDecisions(), fullText)
	scores := c.score("in memory map")
	require.Contains(t, scores, "map000003")
	if s, ok := scores["redis001"]; ok {
		assert.Greater(t, scores["map000003"], s)
	}
}

func TestCorpusScore_EmptyQueryReturnsNil(t *testing.T) {
	c := buildCorpus(sampleDecisions(), fullText)
	assert.Nil(t, c.score("   "))
}

func TestCorpusScore_EmptyCorpusReturnsNil(t *testing.T) {
	c := buildCorpus(nil, fullText)
	assert.Nil(t, c.score("anything"))
}

func TestFunctionText_FallsBackToFullWhenBridgeMissing(t *testing.T) {
	d := &model.Decision{ID: "a", DecisionText: "Add retry logic"}
	assert.Equal(t, fullText(d), functionText(d))
}

func TestFunctionText_PrefersBridgeFunction(t *testing.T) {
	d := &model.Decision{ID: "a", DecisionText: "Add retry logic", Bridge: model.Bridge{Function: "prevents cascading failures"}}
	assert.Equal(t, "prevents cascading failures", functionText(d))
}

func TestStructureText_PrefersBridgeStructure(t *testing.T) {
	d := &model.Decision{ID: "a", DecisionText: "Add retry logic", Bridge: model.Bridge{Structure: "exponential backoff wrapper"}}
	assert.Equal(t, "exponential backoff wrapper", structureText(d))
}

func TestMinMaxNormalize_ScalesToUnitRange(t *testing.T) {
	out := minMaxNormalize(map[string]float64{"a": 1, "b": 3, "c": 2})
	assert.Equal(t, 0.0, out["a"])
	assert.Equal(t, 1.0, out["b"])
	assert.Equal(t, 0.5, out["c"])
}

func TestMinMaxNormalize_AllEqualNormalizesToOne(t *testing.T) {
	out := minMaxNormalize(map[string]float64{"a": 5, "b": 5})
	assert.Equal(t, 1.0, out["a"])
	assert.Equal(t, 1.0, out["b"])
}

func TestMinMaxNormalize_EmptyInput(t *testing.T) {
	assert.Empty(t, minMaxNormalize(nil))
}

func TestAverageScores_AveragesOnlyWhenBothPresent(t *testing.T) {
	out := averageScores(map[string]float64{"a": 2, "b": 4}, map[string]float64{"a": 6})
	assert.Equal(t, 4.0, out["a"])
	assert.Equal(t, 4.0, out["b"])
}

func TestSortHitsDesc(t *testing.T) {
	hits := []Hit{{ID: "a", Score: 1}, {ID: "b", Score: 3}, {ID: "c", Score: 2}}
	sortHitsDesc(hits)
	assert.Equal(t, []string{"b", "c", "a"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}
