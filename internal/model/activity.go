package model

import "time"

// ActivityEntry is one audit-trail event. Delivery is best effort: failed
// submissions are kept in the local store instead of interrupting the
// operation that produced them.
type ActivityEntry struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Category    string    `json:"category"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Detail      string    `json:"detail,omitempty"`
	CierreID    string    `json:"cierre_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
