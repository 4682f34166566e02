package memory

import "github.com/tidwall/gjson"

// parseFactsJSON decodes the LLM's {"facts":[{"category":...,"content":...}]}
// reply via gjson path lookups, consistent with internal/llm/http.go's use
// of gjson for tolerating small response-shape drift instead of a fixed
// struct + encoding/json.Unmarshal round trip.
func parseFactsJSON(userID, raw string) []Fact {
	result := gjson.Get(raw, "facts")
	if !result.IsArray() {
		return nil
	}
	var facts []Fact
	result.ForEach(func(_, item gjson.Result) bool {
		content := item.Get("content").String()
		if content == "" {
			return true
		}
		category := item.Get("category").String()
		if category == "" {
			category = "general"
		}
		facts = append(facts, Fact{UserID: userID, Category: category, Content: content})
		return true
	})
	return facts
}
