package analyze

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rovda/clipd/internal/storage"
)

// MaxDisplayTitleLength is the hard bound on persisted display titles.
const MaxDisplayTitleLength = 80

const (
	maxTags        = 4
	maxTakeaways   = 5
	maxActionItems = 3
	neutralScore   = 5
)

// parseCategoryResponse decodes the classifier's JSON. Any parse failure or
// unknown category maps to the fallback category with no tags, never an error.
func parseCategoryResponse(raw string, categories []storage.Category) (string, []string) {
	var parsed struct {
		Category string   `json:"category"`
		Tags     []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return storage.FallbackCategory, []string{}
	}

	category := strings.ToLower(strings.TrimSpace(parsed.Category))
	known := false
	for _, c := range categories {
		if strings.EqualFold(c.Name, category) {
			category = c.Name
			known = true
			break
		}
	}
	if !known {
		return storage.FallbackCategory, []string{}
	}

	return category, NormalizeTags(parsed.Tags)
}

// NormalizeTags lowercases, trims, and deduplicates tags, preserving order
// and capping the list length.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// parseScoresResponse decodes quality/actionability scores, clamping to
// [1,10]. Parse failure yields the neutral default for both.
func parseScoresResponse(raw string) (quality, actionability int) {
	var parsed struct {
		Quality       json.Number `json:"quality"`
		Actionability json.Number `json:"actionability"`
	}
	dec := json.NewDecoder(strings.NewReader(stripCodeFence(raw)))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return neutralScore, neutralScore
	}
	return clampScore(parsed.Quality), clampScore(parsed.Actionability)
}

func clampScore(n json.Number) int {
	f, err := n.Float64()
	if err != nil {
		return neutralScore
	}
	v := int(f)
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// parseInsightsResponse decodes takeaways and action items, bounding list
// lengths. Returns ok=false on unparseable responses.
func parseInsightsResponse(raw string) (takeaways, actionItems []string, ok bool) {
	var parsed struct {
		Takeaways   []string `json:"takeaways"`
		ActionItems []string `json:"action_items"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return nil, nil, false
	}

	takeaways = trimList(parsed.Takeaways, maxTakeaways)
	actionItems = trimList(parsed.ActionItems, maxActionItems)
	return takeaways, actionItems, true
}

func trimList(items []string, max int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == max {
			break
		}
	}
	return out
}

// cleanDisplayTitle strips quoting and whitespace from a generated title and
// enforces the length bound, truncating with an ellipsis when the model
// overran it.
func cleanDisplayTitle(raw string) string {
	s := strings.TrimSpace(stripCodeFence(raw))
	s = strings.Trim(s, `"'`)
	s = strings.Join(strings.Fields(s), " ")
	return TruncateTitle(s)
}

// TruncateTitle enforces the display title length bound on rune boundaries.
func TruncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= MaxDisplayTitleLength {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:MaxDisplayTitleLength-1])) + "…"
}

// collapseText flattens a generated response to single-line plain text.
func collapseText(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

// stripCodeFence removes a wrapping markdown code fence, which some models
// add around JSON despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
