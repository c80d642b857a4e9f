// Package transit describes the operating status of transit lines.
package transit

import "time"

// Status is the operating state of a transit line
type Status string

const (
	StatusOperational Status = "operational"
	StatusDelayed     Status = "delayed"
	StatusClosed      Status = "closed"
)

// LineStatus is the reported state of one line
type LineStatus struct {
	Line      string    `json:"line"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Disrupted returns the lines that are not operating normally
func Disrupted(statuses []LineStatus) []LineStatus {
	var out []LineStatus
	for _, s := range statuses {
		if s.Status != StatusOperational {
			out = append(out, s)
		}
	}
	return out
}
