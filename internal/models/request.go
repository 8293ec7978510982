package models

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RequestStatus is the canonical, upper-case form of a request status.
type RequestStatus string

const (
	StatusPending          RequestStatus = "PENDING"
	StatusAwaitingResponse RequestStatus = "AWAITING_RESPONSE"
	StatusResponded        RequestStatus = "RESPONDED"
	StatusClosed           RequestStatus = "CLOSED"
	// StatusCancelled is reserved. No operation transitions a request into it.
	StatusCancelled RequestStatus = "CANCELLED"
)

var statusLabels = map[RequestStatus]string{
	StatusPending:          "Pending",
	StatusAwaitingResponse: "Awaiting Response",
	StatusResponded:        "Responded",
	StatusClosed:           "Closed",
	StatusCancelled:        "Cancelled",
}

// updatableStatuses is ordered for error messages.
var updatableStatuses = []RequestStatus{StatusPending, StatusResponded, StatusClosed}

var titleCaser = cases.Title(language.Und)

// NormalizeStatus trims, upper-cases and turns spaces and hyphens into
// underscores, so "awaiting response" becomes AWAITING_RESPONSE.
func NormalizeStatus(raw string) RequestStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return RequestStatus(s)
}

// Label returns the human-readable form of the status.
func (s RequestStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return titleCaser.String(strings.ReplaceAll(strings.ToLower(string(s)), "_", " "))
}

// Updatable reports whether a status update may set s.
func (s RequestStatus) Updatable() bool {
	for _, allowed := range updatableStatuses {
		if s == allowed {
			return true
		}
	}
	return false
}

// UpdatableStatuses lists the statuses a status update may set.
func UpdatableStatuses() []RequestStatus {
	out := make([]RequestStatus, len(updatableStatuses))
	copy(out, updatableStatuses)
	return out
}

// FlexibleID decodes a JSON number or a numeric string. Browser forms post
// select values as strings.
type FlexibleID int64

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// null, blanks and junk decode to zero; validation reports the field by name
		v = 0
	}
	*f = FlexibleID(v)
	return nil
}

// CreateRequestInput is the intake payload for a new benefit request.
type CreateRequestInput struct {
	FirstName        string     `json:"first_name" example:"Jane"`
	LastName         string     `json:"last_name" example:"Doe"`
	DOB              string     `json:"dob" example:"1960-01-01"`
	NationalID       string     `json:"national_id" example:"NID1"`
	TargetCountryID  FlexibleID `json:"target_country_id" swaggertype:"integer" example:"1"`
	BenefitTypeID    FlexibleID `json:"benefit_type_id" swaggertype:"integer" example:"1"`
	EmploymentPeriod string     `json:"employment_period,omitempty" example:"1985-2010"`
	Description      string     `json:"description,omitempty"`
}

// DateLayout is the wire format of dates of birth.
const DateLayout = "2006-01-02"

// Validate checks required fields and returns the parsed date of birth.
func (in *CreateRequestInput) Validate() (time.Time, error) {
	var invalid []string
	if strings.TrimSpace(in.FirstName) == "" {
		invalid = append(invalid, "first_name")
	}
	if strings.TrimSpace(in.LastName) == "" {
		invalid = append(invalid, "last_name")
	}
	dob, err := time.Parse(DateLayout, strings.TrimSpace(in.DOB))
	if err != nil {
		invalid = append(invalid, "dob")
	}
	if strings.TrimSpace(in.NationalID) == "" {
		invalid = append(invalid, "national_id")
	}
	if in.TargetCountryID <= 0 {
		invalid = append(invalid, "target_country_id")
	}
	if in.BenefitTypeID <= 0 {
		invalid = append(invalid, "benefit_type_id")
	}
	if len(invalid) > 0 {
		return time.Time{}, NewValidationError("Missing or invalid fields", invalid...)
	}
	return dob, nil
}

// NewRequest is a request row ready to be inserted.
type NewRequest struct {
	RequestNumber       string
	ClaimantID          int64
	RequestingCountryID int64
	TargetCountryID     int64
	BenefitTypeID       int64
	EmploymentPeriod    *string
	Description         *string
	Status              RequestStatus
	CreatedAt           time.Time
}

// RequestRecord is a stored request joined with its claimant and assignee.
type RequestRecord struct {
	ID                  int64         `json:"request_id"`
	RequestNumber       string        `json:"request_number"`
	Status              RequestStatus `json:"status"`
	StatusLabel         string        `json:"status_label"`
	CreatedAt           time.Time     `json:"created_at"`
	ClaimantID          int64         `json:"claimant_id"`
	FirstName           string        `json:"first_name"`
	LastName            string        `json:"last_name"`
	DOB                 string        `json:"dob"`
	NationalID          string        `json:"national_id"`
	RequestingCountryID int64         `json:"requesting_country_id"`
	TargetCountryID     int64         `json:"target_country_id"`
	BenefitTypeID       int64         `json:"benefit_type_id"`
	EmploymentPeriod    *string       `json:"employment_period"`
	Description         *string       `json:"description"`
	AssignedUserID      *int64        `json:"assigned_user_id"`
	AssignedTo          *string       `json:"assigned_to"`
	DueDate             time.Time     `json:"due_date"`
	Overdue             bool          `json:"overdue"`
}

// Decorate fills the derived fields: the status label, the response due date
// and whether a pending request is past it.
func (r *RequestRecord) Decorate(now time.Time, responseDays int) {
	r.StatusLabel = r.Status.Label()
	r.DueDate = r.CreatedAt.AddDate(0, 0, responseDays)
	r.Overdue = r.Status == StatusPending && now.After(r.DueDate)
}

// RequestDetail is a request with its benefit type descriptor attached.
type RequestDetail struct {
	RequestRecord
	BenefitType BenefitType `json:"benefit_type"`
}

// CreateRequestResult is returned after a request is created.
type CreateRequestResult struct {
	Message       string        `json:"message" example:"Request created successfully"`
	RequestID     int64         `json:"request_id" example:"42"`
	RequestNumber string        `json:"request_number" example:"JM-2025-00001"`
	Status        RequestStatus `json:"status" example:"PENDING"`
}

// UpdateStatusInput is the body of a status update.
type UpdateStatusInput struct {
	Status string `json:"status" example:"RESPONDED"`
}

// StatusUpdateResult is returned after a status update.
type StatusUpdateResult struct {
	Message     string        `json:"message" example:"Status updated"`
	RequestID   int64         `json:"request_id" example:"42"`
	Status      RequestStatus `json:"status" example:"RESPONDED"`
	StatusLabel string        `json:"status_label" example:"Responded"`
}

// AssignInput is the body of an assignment.
type AssignInput struct {
	UserID FlexibleID `json:"user_id" swaggertype:"integer" example:"7"`
}

// AssignmentResult is returned after a request is assigned.
type AssignmentResult struct {
	Message        string `json:"message" example:"Request assigned"`
	RequestID      int64  `json:"request_id" example:"42"`
	AssignedUserID int64  `json:"assigned_user_id" example:"7"`
	AssignedTo     string `json:"assigned_to" example:"John Smith"`
}

// FormatRequestNumber renders {CODE}-{YYYY}-{NNNNN}.
func FormatRequestNumber(countryCode string, year int, seq int64) string {
	return strings.ToUpper(countryCode) + "-" + strconv.Itoa(year) + "-" + padSequence(seq)
}

func padSequence(seq int64) string {
	s := strconv.FormatInt(seq, 10)
	if len(s) >= 5 {
		return s
	}
	return strings.Repeat("0", 5-len(s)) + s
}
