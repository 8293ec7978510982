package models

import (
	"strings"
	"time"
)

// Audit action and entity types written by the core.
const (
	ActionAssignment   = "ASSIGNMENT"
	ActionStatusChange = "STATUS_CHANGE"
	ActionCreate       = "CREATE"
	ActionUpload       = "UPLOAD"

	EntityRequest  = "REQUEST"
	EntityDocument = "DOCUMENT"
	EntityUser     = "USER"
)

// AuditLogEntry is one append-only audit row.
type AuditLogEntry struct {
	ID          int64     `json:"log_id"`
	UserID      *int64    `json:"user_id"`
	ActionType  string    `json:"action_type"`
	EntityType  string    `json:"entity_type"`
	EntityID    *int64    `json:"entity_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditInput is the body of POST /audit.
type AuditInput struct {
	UserID      *FlexibleID `json:"user_id,omitempty" swaggertype:"integer"`
	ActionType  string      `json:"action_type" example:"VIEW"`
	EntityType  string      `json:"entity_type" example:"REQUEST"`
	EntityID    *FlexibleID `json:"entity_id,omitempty" swaggertype:"integer"`
	Description string      `json:"description" example:"Viewed request details"`
}

// Entry converts the input to an entry. The actor defaults to callerID.
func (in *AuditInput) Entry(callerID int64) (AuditLogEntry, error) {
	action := strings.TrimSpace(in.ActionType)
	if action == "" {
		return AuditLogEntry{}, NewValidationError("Missing required fields", "action_type")
	}
	actor := callerID
	if in.UserID != nil && *in.UserID > 0 {
		actor = int64(*in.UserID)
	}
	entry := AuditLogEntry{
		UserID:      &actor,
		ActionType:  strings.ToUpper(action),
		EntityType:  strings.ToUpper(strings.TrimSpace(in.EntityType)),
		Description: in.Description,
	}
	if in.EntityID != nil && *in.EntityID > 0 {
		id := int64(*in.EntityID)
		entry.EntityID = &id
	}
	return entry, nil
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	EntityType string
	EntityID   *int64
	Limit      int
}

// AuditCreated is returned after an entry is recorded.
type AuditCreated struct {
	Message string `json:"message" example:"Audit log recorded"`
	LogID   int64  `json:"log_id" example:"12"`
}
