package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kjstillabower/trail-transit-service/internal/models"
)

var (
	fencedJSONPattern = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")
	bareArrayPattern  = regexp.MustCompile(`(?s)\A\s*(\[.*\])\s*\z`)
	bareObjectPattern = regexp.MustCompile(`(?s)\A\s*(\{.*\})\s*\z`)
)

// extractor pulls a JSON value out of model output. ok is false when the
// pattern does not match or the match does not parse.
type extractor struct {
	name string
	fn   func(text string) (any, bool)
}

// extractors run in order; the first success wins.
var extractors = []extractor{
	{"fenced_json", matchJSON(fencedJSONPattern)},
	{"bare_array", matchJSON(bareArrayPattern)},
	{"bare_object", matchJSON(bareObjectPattern)},
}

func matchJSON(re *regexp.Regexp) func(string) (any, bool) {
	return func(text string) (any, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return nil, false
		}
		var v any
		if err := json.Unmarshal([]byte(m[1]), &v); err != nil {
			return nil, false
		}
		return v, true
	}
}

// ExtractRecommendations converts raw model text into a RecommendationResult
// and names the strategy that produced it.
func ExtractRecommendations(text string) (models.RecommendationResult, string) {
	for _, ex := range extractors {
		v, ok := ex.fn(text)
		if !ok {
			continue
		}
		if records, ok := toRecords(v); ok {
			return models.StructuredRecommendations(records), ex.name
		}
	}

	if lines := bulletLines(text); len(lines) > 0 {
		return models.DescriptionRecommendations(lines), "bullets"
	}
	return models.DescriptionRecommendations([]string{text}), "raw_text"
}

// toRecords normalizes a parsed JSON value into records. Scalars are rejected.
func toRecords(v any) ([]models.Recommendation, bool) {
	switch t := v.(type) {
	case []any:
		records := make([]models.Recommendation, 0, len(t))
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				records = append(records, models.Recommendation(obj))
			} else {
				records = append(records, models.Recommendation{"description": fmt.Sprint(item)})
			}
		}
		return records, true
	case map[string]any:
		if inner, ok := soleObjectArray(t); ok {
			return inner, true
		}
		return []models.Recommendation{models.Recommendation(t)}, true
	default:
		return nil, false
	}
}

// soleObjectArray returns the array when exactly one field of obj holds a
// non-empty array made only of objects, e.g. {"trails": [{...}, {...}]}.
func soleObjectArray(obj map[string]any) ([]models.Recommendation, bool) {
	var found []models.Recommendation
	count := 0
	for _, v := range obj {
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		records := make([]models.Recommendation, 0, len(arr))
		for _, item := range arr {
			m, ok := item.(map[string]any)
			if !ok {
				records = nil
				break
			}
			records = append(records, models.Recommendation(m))
		}
		if records != nil {
			found = records
			count++
		}
	}
	return found, count == 1
}

// bulletLines returns the text of lines starting with "-" or "*", with
// bullet markers and surrounding spaces stripped. Empty results are dropped.
func bulletLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") {
			continue
		}
		if desc := strings.Trim(line, "- *"); desc != "" {
			out = append(out, desc)
		}
	}
	return out
}
