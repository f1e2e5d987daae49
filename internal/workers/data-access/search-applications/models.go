package searchapplications

import "gritsync/internal/search"

type Input struct {
	Text          string     `json:"text,omitempty"`
	Status        string     `json:"status,omitempty" validate:"omitempty,oneof=initiated in-progress rejected completed pending approved"`
	Type          string     `json:"type,omitempty" validate:"omitempty,oneof=NCLEX EAD"`
	MinPercentage *int       `json:"minPercentage,omitempty" validate:"omitempty,min=0,max=100"`
	MaxPercentage *int       `json:"maxPercentage,omitempty" validate:"omitempty,min=0,max=100"`
	SortBy        string     `json:"sortBy,omitempty" validate:"omitempty,oneof=updated percentage relevance"`
	Pagination    Pagination `json:"pagination"`
}

type Pagination struct {
	From int `json:"from" validate:"min=0"`
	Size int `json:"size" validate:"min=0"`
}

type Output struct {
	Data      []search.Document `json:"data"`
	TotalHits int               `json:"totalHits"`
	Took      int               `json:"took"` // milliseconds
	From      int               `json:"from"`
	Size      int               `json:"size"`
}
