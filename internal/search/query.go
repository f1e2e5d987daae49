package search

import (
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Query struct {
	Text          string
	Status        string
	Type          string
	MinPercentage *int
	MaxPercentage *int
	SortBy        string
	From          int
	Size          int
}

// Normalize clamps paging and lower-cases the keyword filters.
func (q Query) Normalize() Query {
	if q.From < 0 {
		q.From = 0
	}
	if q.Size <= 0 {
		q.Size = DefaultPageSize
	}
	if q.Size > MaxPageSize {
		q.Size = MaxPageSize
	}
	q.Text = strings.TrimSpace(q.Text)
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	q.Type = strings.ToUpper(strings.TrimSpace(q.Type))
	return q
}

// Body builds the search request body for q.
func (q Query) Body() map[string]interface{} {
	must := []interface{}{}
	filter := []interface{}{}

	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"applicantName^2", "email", "applicationId"},
				"type":   "best_fields",
			},
		})
	}
	if q.Status != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"status": q.Status},
		})
	}
	if q.Type != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"type": q.Type},
		})
	}
	if q.MinPercentage != nil || q.MaxPercentage != nil {
		r := map[string]interface{}{}
		if q.MinPercentage != nil {
			r["gte"] = *q.MinPercentage
		}
		if q.MaxPercentage != nil {
			r["lte"] = *q.MaxPercentage
		}
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{"percentage": r},
		})
	}

	if len(must) == 0 {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}
	boolQuery := map[string]interface{}{"must": must}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
	}
	switch q.SortBy {
	case "percentage":
		body["sort"] = []interface{}{map[string]interface{}{"percentage": "desc"}, map[string]interface{}{"updatedAt": "desc"}}
	case "updated", "":
		body["sort"] = []interface{}{map[string]interface{}{"updatedAt": "desc"}}
	case "relevance":
		// score order
	}
	return body
}
