package events

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Payload is a candidate event as submitted by a client. Times arrive as
// text so a malformed value becomes a field error rather than a decode failure.
type Payload struct {
	EventName   string  `json:"event_name" validate:"required,event_name"`
	Timestamp   string  `json:"timestamp" validate:"required,event_time"`
	ReceivedAt  string  `json:"received_at" validate:"required,event_time"`
	URL         string  `json:"url" validate:"required,url,max=2048"`
	Path        string  `json:"path" validate:"required,startswith=/,max=2048"`
	Referrer    *string `json:"referrer" validate:"omitempty,max=2048"`
	Title       *string `json:"title" validate:"omitempty,max=512"`
	UTMSource   *string `json:"utm_source" validate:"omitempty,max=255"`
	UTMMedium   *string `json:"utm_medium" validate:"omitempty,max=255"`
	UTMCampaign *string `json:"utm_campaign" validate:"omitempty,max=255"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	Region      *string `json:"region" validate:"omitempty,max=100"`
	SessionID   *string `json:"session_id" validate:"omitempty,max=255,no_control"`
	UserID      *string `json:"user_id" validate:"omitempty,max=255"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report json names so error maps match the wire format
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "event_name", validateEventName)
	mustRegister(v, "event_time", validateEventTime)
	mustRegister(v, "no_control", validateNoControl)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("events: registering %s validation: %v", tag, err))
	}
}

func validateNoControl(fl validator.FieldLevel) bool {
	return !strings.ContainsFunc(fl.Field().String(), unicode.IsControl)
}

func validateEventName(fl validator.FieldLevel) bool {
	return IsKnownEventName(fl.Field().String())
}

func validateEventTime(fl validator.FieldLevel) bool {
	_, err := ParseTimestamp(fl.Field().String())
	return err == nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 or "YYYY-MM-DD HH:MM:SS" with optional
// fractional seconds. Values without a zone are taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// Validate checks the payload and returns a *ValidationError describing
// every offending field.
func (p *Payload) Validate() error {
	p.normalize()

	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &ValidationError{Fields: map[string]string{"body": err.Error()}}
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fieldError := range validationErrors {
		if _, seen := fields[fieldError.Field()]; !seen {
			fields[fieldError.Field()] = formatFieldError(fieldError)
		}
	}
	return &ValidationError{Fields: fields}
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "event_name":
		return fmt.Sprintf("%q is not a valid choice.", fe.Value())
	case "event_time":
		return "Datetime has wrong format. Use RFC 3339 or YYYY-MM-DD HH:MM:SS."
	case "no_control":
		return "Must not contain control characters."
	case "url":
		return "Enter a valid URL."
	case "startswith":
		return fmt.Sprintf("Must start with %q.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	default:
		return fmt.Sprintf("Failed %s validation.", fe.Tag())
	}
}

func (p *Payload) normalize() {
	p.EventName = strings.TrimSpace(p.EventName)
	p.Timestamp = strings.TrimSpace(p.Timestamp)
	p.ReceivedAt = strings.TrimSpace(p.ReceivedAt)
	p.URL = strings.TrimSpace(p.URL)
	p.Path = strings.TrimSpace(p.Path)
	for _, field := range []**string{
		&p.Referrer, &p.Title, &p.UTMSource, &p.UTMMedium, &p.UTMCampaign,
		&p.Country, &p.Region, &p.SessionID, &p.UserID,
	} {
		*field = optional(*field)
	}
}

// optional trims a value and collapses blanks to nil.
func optional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// toEvent assumes Validate has passed.
func (p *Payload) toEvent() *Event {
	timestamp, _ := ParseTimestamp(p.Timestamp)
	receivedAt, _ := ParseTimestamp(p.ReceivedAt)

	return &Event{
		EventName:   p.EventName,
		Timestamp:   timestamp,
		ReceivedAt:  receivedAt,
		URL:         p.URL,
		Path:        p.Path,
		Referrer:    p.Referrer,
		Title:       p.Title,
		UTMSource:   p.UTMSource,
		UTMMedium:   p.UTMMedium,
		UTMCampaign: p.UTMCampaign,
		Country:     p.Country,
		Region:      p.Region,
		SessionID:   p.SessionID,
		UserID:      p.UserID,
	}
}
