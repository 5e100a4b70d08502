package endpoint

import (
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Status describes whether an endpoint should receive traffic.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDegraded Status = "degraded"
)

// Endpoint is a single upstream gateway the proxy can forward through.
type Endpoint struct {
	ID        string    `json:"id"`
	BaseURL   string    `json:"base_url"`
	TargetURL string    `json:"target_url,omitempty"`
	Region    string    `json:"region"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an endpoint with a normalized base URL and active status.
// Timestamps are stamped by the registry on Add.
func New(id, baseURL, targetURL, region string) *Endpoint {
	return &Endpoint{
		ID:        id,
		BaseURL:   NormalizeBaseURL(baseURL),
		TargetURL: targetURL,
		Region:    region,
		Status:    StatusActive,
	}
}

// NormalizeBaseURL strips trailing slashes so path concatenation in the
// forwarder never produces double slashes.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(raw, "/")
}

// IsActive reports whether the endpoint is eligible for selection.
func (e *Endpoint) IsActive() bool {
	return e.Status == StatusActive
}

// Validate checks the structural invariants of an endpoint record.
func (e *Endpoint) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.BaseURL,
			validation.Required,
			validation.By(validateBaseURL),
		),
		validation.Field(&e.Region, validation.Required),
		validation.Field(&e.Status,
			validation.Required,
			validation.In(StatusActive, StatusInactive, StatusDegraded),
		),
	)
}

func validateBaseURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if strings.HasSuffix(raw, "/") {
		return validation.NewError("validation_trailing_slash", "base URL must not end with a slash")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsed.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
