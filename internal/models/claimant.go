package models

import "time"

// Claimant is the person a benefit request is filed for. Rows are created on
// the first request naming a national id and never change afterwards.
type Claimant struct {
	ID         int64     `json:"claimant_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	DOB        time.Time `json:"dob"`
	NationalID string    `json:"national_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClaimantInput carries the identifying fields supplied with a request.
type ClaimantInput struct {
	NationalID string
	FirstName  string
	LastName   string
	DOB        time.Time
}
