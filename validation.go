package formrelay

import (
	"fmt"
	"regexp"
	"strings"
)

// Field length bounds for the contact form
const (
	minNameLength    = 2
	maxNameLength    = 100
	maxEmailLength   = 255
	minMessageLength = 10
	maxMessageLength = 1000
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateContact checks the contact payload against its schema.
// Returns nil when the payload is valid.
func ValidateContact(req *ContactRequest) []FieldError {
	var errs []FieldError

	name := strings.TrimSpace(req.Name)
	if len(name) < minNameLength || len(name) > maxNameLength {
		errs = append(errs, FieldError{
			Field:   "name",
			Message: fmt.Sprintf("name must be between %d and %d characters", minNameLength, maxNameLength),
		})
	}

	if err := validateEmail(req.Email); err != "" {
		errs = append(errs, FieldError{Field: "email", Message: err})
	}

	if strings.TrimSpace(req.ProjectType) == "" {
		errs = append(errs, FieldError{Field: "projectType", Message: "projectType is required"})
	}

	msg := strings.TrimSpace(req.Message)
	if len(msg) < minMessageLength || len(msg) > maxMessageLength {
		errs = append(errs, FieldError{
			Field:   "message",
			Message: fmt.Sprintf("message must be between %d and %d characters", minMessageLength, maxMessageLength),
		})
	}

	return errs
}

// ValidateMeeting checks the meeting payload. Only presence is enforced,
// plus email format since the address is used as a reply target.
func ValidateMeeting(req *MeetingRequest) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(req.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "name is required"})
	}
	if err := validateEmail(req.Email); err != "" {
		errs = append(errs, FieldError{Field: "email", Message: err})
	}
	if strings.TrimSpace(req.Date) == "" {
		errs = append(errs, FieldError{Field: "date", Message: "date is required"})
	}
	if strings.TrimSpace(req.Time) == "" {
		errs = append(errs, FieldError{Field: "time", Message: "time is required"})
	}

	return errs
}

func validateEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "email is required"
	}
	if len(email) > maxEmailLength {
		return fmt.Sprintf("email must be at most %d characters", maxEmailLength)
	}
	if !emailPattern.MatchString(email) {
		return "email format is invalid"
	}
	return ""
}

// sanitizeReplacer escapes characters that could break out of templated
// output. Angle brackets are stripped entirely.
var sanitizeReplacer = strings.NewReplacer(
	"&", "&amp;",
	"\"", "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
	"<", "",
	">", "",
)

// Sanitize neutralizes markup in a user-supplied text field
func Sanitize(s string) string {
	return sanitizeReplacer.Replace(strings.TrimSpace(s))
}

// sanitizeContact returns a copy with every text field sanitized
func sanitizeContact(req *ContactRequest) *ContactRequest {
	return &ContactRequest{
		Name:        Sanitize(req.Name),
		Email:       Sanitize(req.Email),
		Phone:       Sanitize(req.Phone),
		ProjectType: Sanitize(req.ProjectType),
		Message:     Sanitize(req.Message),
	}
}

// sanitizeMeeting returns a copy with every text field sanitized
func sanitizeMeeting(req *MeetingRequest) *MeetingRequest {
	return &MeetingRequest{
		Name:    Sanitize(req.Name),
		Email:   Sanitize(req.Email),
		Phone:   Sanitize(req.Phone),
		Message: Sanitize(req.Message),
		Date:    Sanitize(req.Date),
		Time:    Sanitize(req.Time),
	}
}
