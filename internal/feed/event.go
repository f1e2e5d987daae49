// Package feed relays row-level change events between writers and open
// sessions, and merges them into an in-memory record set.
package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tables observed by sessions.
const (
	TableApplications = "applications"
	TableSteps        = "application_timeline_steps"
	TablePayments     = "payments"
	TableAccounts     = "processing_accounts"
)

// AllTables is every table a session subscribes to by default.
var AllTables = []string{TableApplications, TableSteps, TablePayments, TableAccounts}

type EventType string

const (
	Insert EventType = "insert"
	Update EventType = "update"
	Delete EventType = "delete"
)

type Event struct {
	Table         string          `json:"table"`
	Type          EventType       `json:"type"`
	ApplicationID string          `json:"applicationId"`
	RecordID      string          `json:"recordId"`
	Record        json.RawMessage `json:"record,omitempty"`
	At            time.Time       `json:"at"`
}

// NewEvent encodes record as the event payload. Deletes may pass a nil record.
func NewEvent(table string, typ EventType, applicationID, recordID string, record interface{}) (Event, error) {
	ev := Event{
		Table:         table,
		Type:          typ,
		ApplicationID: applicationID,
		RecordID:      recordID,
		At:            time.Now().UTC(),
	}
	if record != nil {
		raw, err := json.Marshal(record)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s record %s: %w", table, recordID, err)
		}
		ev.Record = raw
	}
	return ev, nil
}

// Channel is the pub/sub channel for one application's table.
func Channel(prefix, applicationID, table string) string {
	return prefix + ":" + applicationID + ":" + table
}
