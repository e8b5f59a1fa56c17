package retrieval

import (
	"regexp"
	"strings"

	"github.com/tfatykhov/decisionintel/internal/model"
)

// functionMarkers are purpose-oriented phrases that reward a sentence as
// describing why a decision exists rather than how it is implemented.
var functionMarkers = []string{
	" to ", " so that ", " enables ", " enable ", " prevents ", " prevent ",
	" avoids ", " avoid ", " allows ", " allow ", " in order to ", " ensures ", " ensure ",
}

// structureMarkers reward implementation-oriented language: technology
// names and verb+object patterns typical of "how" statements.
var structureMarkers = []string{
	" using ", " via ", " implemented with ", " backed by ", " stored in ",
	" built on ", " written in ", " configured ", " deployed ",
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_-]*`)

// bridgeScoreThreshold is the minimum heuristic score a side must clear to
// be recorded; below it the extractor prefers no bridge over a misleading
// one.
const bridgeScoreThreshold = 1.0

// ExtractInput bundles the extractor's inputs: the decision's own text and
// context, plus any reasons supplied with the record (the highest-strength
// analysis reason is preferred as a function source).
type ExtractInput struct {
	DecisionText string
	Context      string
	Reasons      []model.Reason
}

// Extract derives a decision's bridge description from its text, context,
// and reasons using rule-based scoring heuristics: it never calls an LLM.
// When both sides score below threshold it returns a zero Bridge with
// method "none" rather than recording a guess.
func Extract(in ExtractInput) (model.Bridge, model.BridgeMethod) {
	functionSource := in.DecisionText
	if best := bestAnalysisReason(in.Reasons); best != "" {
		functionSource = best
	}

	functionText, functionScore := extractSide(functionSource+" "+in.Context, functionMarkers)
	structureText, structureScore := extractSide(in.DecisionText+" "+in.Context, structureMarkers)

	var bridge model.Bridge
	haveFunction := functionScore >= bridgeScoreThreshold
	haveStructure := structureScore >= bridgeScoreThreshold

	if haveFunction {
		bridge.Function = truncateBridge(functionText)
	}
	if haveStructure {
		bridge.Structure = truncateBridge(structureText)
	}

	switch {
	case haveFunction && haveStructure:
		return bridge, model.BridgeBothExtracted
	case haveFunction || haveStructure:
		return bridge, model.BridgeRule
	default:
		return model.Bridge{}, model.BridgeNone
	}
}

// bestAnalysisReason returns the text of the highest-strength reason tagged
// "analysis", or "" if none is present.
func bestAnalysisReason(reasons []model.Reason) string {
	var best model.Reason
	found := false
	for _, r := range reasons {
		if r.Type != model.ReasonAnalysis {
			continue
		}
		if !found || r.Strength > best.Strength {
			best = r
			found = true
		}
	}
	if !found {
		return ""
	}
	return best.Text
}

// extractSide scores every sentence of text against markers and returns the
// best-scoring sentence plus its score. A sentence's score is the number of
// markers it contains plus 0.25 per word-like token (any case, repeats
// counted), so longer sentences score higher on either side.
func extractSide(text string, markers []string) (string, float64) {
	sentences := splitSentences(text)
	var bestSentence string
	var bestScore float64
	for _, s := range sentences {
		lower := " " + strings.ToLower(strings.TrimSpace(s)) + " "
		if lower == "  " {
			continue
		}
		var score float64
		for _, m := range markers {
			if strings.Contains(lower, m) {
				score++
			}
		}
		score += 0.25 * float64(len(wordPattern.FindAllString(s, -1)))
		if score > bestScore {
			bestScore = score
			bestSentence = strings.TrimSpace(s)
		}
	}
	return bestSentence, bestScore
}

func splitSentences(text string) []string {
	return regexp.MustCompile(`[.!?\n]+`).Split(text, -1)
}

const maxBridgeLen = 512

func truncateBridge(s string) string {
	if len(s) <= maxBridgeLen {
		return s
	}
	return s[:maxBridgeLen]
}
