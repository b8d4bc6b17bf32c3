package formrelay

// Form names used in logs, metrics, and audit events
const (
	FormContact = "contact"
	FormMeeting = "meeting"
)

// ContactRequest is the contact form submission payload
type ContactRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	ProjectType string `json:"projectType"`
	Message     string `json:"message"`
}

// MeetingRequest is the meeting-scheduling form submission payload
type MeetingRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message,omitempty"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

// FieldError describes one invalid field in a submission
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SubmissionResponse is the success payload for accepted submissions
type SubmissionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// errorResponse is the uniform client-facing failure payload
type errorResponse struct {
	Error     string       `json:"error"`
	Code      string       `json:"code,omitempty"`
	Details   []FieldError `json:"details,omitempty"`
	ResetTime string       `json:"resetTime,omitempty"`
}
