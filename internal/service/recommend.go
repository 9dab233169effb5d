package service

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/trail-transit-service/internal/client"
	"github.com/kjstillabower/trail-transit-service/internal/models"
	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

const promptInstructions = `Use only the provided list of trails below.
Do not assume or invent anything that is not explicitly stated in the trail list.
Be concise. Always include walking distance, difficulty and website link if available.
Return results in JSON format with fields: name, length, difficulty, station, distance, website.`

// TextGenerator is the subset of client.GeminiClient the engine calls.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// RecommendationEngine asks a text model to pick trails for a preference,
// grounded on the computed trail list.
type RecommendationEngine struct {
	gen    TextGenerator
	logger *zap.Logger
}

func NewRecommendationEngine(gen TextGenerator, logger *zap.Logger) *RecommendationEngine {
	return &RecommendationEngine{gen: gen, logger: logger}
}

// Recommend never fails; a request-level failure becomes the error variant.
func (e *RecommendationEngine) Recommend(ctx context.Context, preference string, trails []models.StationMatch) models.RecommendationResult {
	logger := observability.LoggerFromContext(ctx, e.logger)

	text, err := e.gen.GenerateContent(ctx, BuildPrompt(preference, trails))
	if err != nil {
		logger.Warn("recommendation request failed",
			zap.String("error_category", string(client.CategorizeError(err))), zap.Error(err))
		observability.RecommendationExtractionsTotal.WithLabelValues("error").Inc()
		return models.ErrorRecommendation("Failed to get recommendations: %v", err)
	}

	result, strategy := ExtractRecommendations(text)
	observability.RecommendationExtractionsTotal.WithLabelValues(strategy).Inc()
	logger.Debug("recommendations extracted", zap.String("strategy", strategy), zap.Int("records", len(result.Records)))
	return result
}

// BuildPrompt renders the preference, the fixed instructions, and one line per named trail.
func BuildPrompt(preference string, trails []models.StationMatch) string {
	var b strings.Builder
	b.WriteString(preference)
	b.WriteString("\n\n")
	b.WriteString(promptInstructions)
	b.WriteString("\n\nAvailable Trails:\n")
	for _, t := range trails {
		if t.Name == "" {
			continue
		}
		b.WriteString(trailLine(t))
		b.WriteByte('\n')
	}
	return b.String()
}

func trailLine(t models.StationMatch) string {
	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(t.Name)
	b.WriteString(" — ")
	b.WriteString(strconv.FormatFloat(t.Length, 'f', -1, 64))
	b.WriteString(" km, Difficulty: ")
	b.WriteString(t.Difficulty)
	b.WriteString(", Nearest Station: ")
	if t.Station != nil {
		b.WriteString(*t.Station)
		if t.Distance != nil {
			b.WriteString(" (")
			b.WriteString(strconv.FormatFloat(*t.Distance, 'f', -1, 64))
			b.WriteString(" km)")
		}
	} else {
		b.WriteString("unknown")
	}
	if t.Website != "" {
		b.WriteString(", Website: ")
		b.WriteString(t.Website)
	}
	return b.String()
}
