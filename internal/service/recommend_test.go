package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/trail-transit-service/internal/models"
)

type fakeGenerator struct {
	text   string
	err    error
	prompt string
	calls  int
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.text, f.err
}

func sampleTrails() []models.StationMatch {
	return []models.StationMatch{
		{
			Name: "Dragon's Back", Length: 8.5, Difficulty: "Easy",
			Station: strPtr("Shau Kei Wan"), Distance: floatPtr(0.35),
			Website: "https://www.afcd.gov.hk/dragons-back",
		},
		{Name: "", Length: 2, Difficulty: "Easy"},
		{Name: "Lion Rock", Length: 3.1, Difficulty: "Moderate", Station: strPtr("Wong Tai Sin"), Distance: floatPtr(1.2)},
		{Name: "Remote Ridge", Length: 12, Difficulty: "Hard"},
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("An easy coastal walk", sampleTrails())

	assert.True(t, strings.HasPrefix(prompt, "An easy coastal walk\n"), "preference must come first")
	assert.Contains(t, prompt, "Use only the provided list of trails below.")
	assert.Contains(t, prompt, "Return results in JSON format with fields: name, length, difficulty, station, distance, website.")

	pref := strings.Index(prompt, "An easy coastal walk")
	instr := strings.Index(prompt, "Use only the provided list")
	list := strings.Index(prompt, "Available Trails:")
	assert.True(t, pref < instr && instr < list, "sections out of order")

	assert.Contains(t, prompt, "- Dragon's Back — 8.5 km, Difficulty: Easy, Nearest Station: Shau Kei Wan (0.35 km), Website: https://www.afcd.gov.hk/dragons-back\n")
	assert.Contains(t, prompt, "- Lion Rock — 3.1 km, Difficulty: Moderate, Nearest Station: Wong Tai Sin (1.2 km)\n")
	assert.Contains(t, prompt, "- Remote Ridge — 12 km, Difficulty: Hard, Nearest Station: unknown\n")
	assert.Equal(t, 3, strings.Count(prompt, "\n- "), "unnamed trail must be omitted")
}

func TestRecommendationEngine_Recommend(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n[{\"name\": \"Dragon's Back\"}]\n```"}
	e := NewRecommendationEngine(gen, nil)

	got := e.Recommend(context.Background(), "coastal", sampleTrails())

	assert.Equal(t, models.RecommendationStructured, got.Kind)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Dragon's Back", got.Records[0]["name"])
	assert.True(t, strings.HasPrefix(gen.prompt, "coastal"))
}

func TestRecommendationEngine_RequestFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("generate content: malformed response: no candidates")}
	e := NewRecommendationEngine(gen, nil)

	got := e.Recommend(context.Background(), "coastal", nil)

	assert.True(t, got.IsError())
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Failed to get recommendations: generate content: malformed response: no candidates", got.Records[0]["error"])
}
