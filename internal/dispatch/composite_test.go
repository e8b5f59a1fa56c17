package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tfatykhov/decisionintel/internal/model"
)

func TestCalibrationNote_NoSampleSize(t *testing.T) {
	note := calibrationNote(model.CategoryArchitecture, model.Calibration{})
	assert.Contains(t, note, "no reviewed history")
}

func TestCalibrationNote_WithSamples(t *testing.T) {
	note := calibrationNote(model.CategorySecurity, model.Calibration{SampleSize: 10, Accuracy: 0.8, BrierScore: 0.12})
	assert.Contains(t, note, "80%")
	assert.Contains(t, note, "10 reviewed")
}

func TestSessionBrief_MarkdownEmptySections(t *testing.T) {
	b := sessionBrief{}
	out := b.markdown()
	assert.Contains(t, out, "none found")
	assert.Contains(t, out, "none configured")
	assert.Contains(t, out, "no reviewed history")
	assert.Contains(t, out, "nothing pending")
}

func TestSessionBrief_MarkdownWithContent(t *testing.T) {
	b := sessionBrief{
		Retrieval:  []model.RetrievalResult{{ID: "a1b2c3d4", Summary: "use redis", Confidence: 0.9, Status: model.StatusPending}},
		Guardrails: []model.Guardrail{{ID: "g1", Description: "require tests", Action: model.ActionBlock}},
		Calibration: model.Calibration{SampleSize: 5, Accuracy: 0.6, BrierScore: 0.2},
		Ready:       []model.ReadyAction{{Kind: "overdue_review", Description: "decision x is overdue"}},
	}
	out := b.markdown()
	assert.Contains(t, out, "use redis")
	assert.Contains(t, out, "require tests")
	assert.Contains(t, out, "overdue_review")
}
