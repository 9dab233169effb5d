package models

import (
	"encoding/json"
	"fmt"
)

// RecommendationKind identifies which variant a RecommendationResult holds.
type RecommendationKind string

const (
	RecommendationStructured   RecommendationKind = "structured"
	RecommendationDescriptions RecommendationKind = "descriptions"
	RecommendationError        RecommendationKind = "error"
)

// Recommendation is one free-form record returned to the client.
type Recommendation map[string]any

// RecommendationResult is either structured trail records, plain description
// records, or a single error record. On the wire it is always a JSON array of
// objects, so the kind is inferred again when decoding.
type RecommendationResult struct {
	Kind    RecommendationKind
	Records []Recommendation
}

// StructuredRecommendations wraps records parsed from the provider's JSON.
func StructuredRecommendations(records []Recommendation) RecommendationResult {
	return RecommendationResult{Kind: RecommendationStructured, Records: records}
}

// DescriptionRecommendations wraps plain text lines as description records.
func DescriptionRecommendations(lines []string) RecommendationResult {
	records := make([]Recommendation, 0, len(lines))
	for _, l := range lines {
		records = append(records, Recommendation{"description": l})
	}
	return RecommendationResult{Kind: RecommendationDescriptions, Records: records}
}

// ErrorRecommendation builds the single-record error variant.
func ErrorRecommendation(format string, args ...any) RecommendationResult {
	return RecommendationResult{
		Kind:    RecommendationError,
		Records: []Recommendation{{"error": fmt.Sprintf(format, args...)}},
	}
}

// IsError reports whether the result is the error variant.
func (r RecommendationResult) IsError() bool {
	return r.Kind == RecommendationError
}

func (r RecommendationResult) MarshalJSON() ([]byte, error) {
	if r.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Records)
}

func (r *RecommendationResult) UnmarshalJSON(data []byte) error {
	var records []Recommendation
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	r.Records = records
	r.Kind = inferKind(records)
	return nil
}

func inferKind(records []Recommendation) RecommendationKind {
	if len(records) == 1 {
		if _, ok := records[0]["error"]; ok && len(records[0]) == 1 {
			return RecommendationError
		}
	}
	if len(records) == 0 {
		return RecommendationStructured
	}
	for _, rec := range records {
		if _, ok := rec["description"]; !ok || len(rec) != 1 {
			return RecommendationStructured
		}
	}
	return RecommendationDescriptions
}
