// Package search keeps the application progress index in Elasticsearch.
package search

import (
	"time"

	"gritsync/internal/progress"
)

// Document is one application's row in the progress index.
type Document struct {
	ApplicationID  string    `json:"applicationId"`
	UserID         string    `json:"userId,omitempty"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	Percentage     int       `json:"percentage"`
	CompletedItems int       `json:"completedItems"`
	TotalItems     int       `json:"totalItems"`
	ApplicantName  string    `json:"applicantName,omitempty"`
	Email          string    `json:"email,omitempty"`
	CompletedSteps []string  `json:"completedSteps"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewDocument flattens an evaluation of snap into an index document.
func NewDocument(snap progress.Snapshot, res progress.Result, status progress.Status, at time.Time) Document {
	doc := Document{
		Type:           res.AppType,
		Status:         string(status),
		Percentage:     res.Percentage,
		CompletedItems: res.CompletedItems,
		TotalItems:     res.TotalItems,
		CompletedSteps: res.CompletedKeys(),
		UpdatedAt:      at.UTC(),
	}
	if doc.CompletedSteps == nil {
		doc.CompletedSteps = []string{}
	}
	if app := snap.Application; app != nil {
		doc.ApplicationID = app.ID
		doc.UserID = app.UserID
		doc.ApplicantName = app.FullName()
		doc.Email = app.Email
	}
	return doc
}
