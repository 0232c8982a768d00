package models

import "time"

// Analytics pipeline states for a call record.
const (
	AnalyticsSkipped = "skipped" // no recording or analytics disabled
	AnalyticsPending = "pending"
	AnalyticsDone    = "done"
	AnalyticsFailed  = "failed"
)

// Call is one entry in the call history.
type Call struct {
	ID             int64      `json:"id"`
	CallID         string     `json:"call_id"`
	Direction      string     `json:"direction"` // "inbound" | "outbound"
	RemoteURI      string     `json:"remote_uri"`
	StartTime      time.Time  `json:"start_time"`
	AnswerTime     *time.Time `json:"answer_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Duration       int        `json:"duration"` // seconds of talk time
	Disposition    string     `json:"disposition"`
	RecordingFile  string     `json:"recording_file,omitempty"`
	Transcript     string     `json:"transcript,omitempty"`
	Sentiment      string     `json:"sentiment,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	AnalyticsState string     `json:"analytics_state"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Contact is an address book entry.
type Contact struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URI       string    `json:"uri"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminUser is an account for the HTTP control API.
type AdminUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
