package store

import (
	"context"

	"github.com/nis-portal/portal-api/internal/models"
)

// ClaimantStore persists claimants.
type ClaimantStore interface {
	// FindClaimantByNationalID returns models.ErrNotFound when absent.
	FindClaimantByNationalID(ctx context.Context, nationalID string) (*models.Claimant, error)
	// InsertClaimant adds c unless its national id is already registered, in
	// which case the existing claimant id is returned with created false.
	InsertClaimant(ctx context.Context, c *models.Claimant) (id int64, created bool, err error)
}

// RequestStore persists benefit requests and their number sequences.
type RequestStore interface {
	// NextRequestSequence reserves the next number of a (country code, year)
	// bucket. Concurrent callers never receive the same value.
	NextRequestSequence(ctx context.Context, countryCode string, year int) (int64, error)
	InsertRequest(ctx context.Context, r *models.NewRequest) (int64, error)
	ListRequests(ctx context.Context) ([]models.RequestRecord, error)
	// GetRequest returns models.ErrNotFound when absent.
	GetRequest(ctx context.Context, id int64) (*models.RequestRecord, error)
	RequestExists(ctx context.Context, id int64) (bool, error)
	// UpdateRequestStatus reports whether a row matched.
	UpdateRequestStatus(ctx context.Context, id int64, status models.RequestStatus) (bool, error)
	// AssignRequest reports whether a row matched.
	AssignRequest(ctx context.Context, id, userID int64) (bool, error)
}

// ReferenceStore reads countries, offices and roles.
type ReferenceStore interface {
	// CountryCode returns models.ErrNotFound when the country row is absent;
	// an empty code is returned as "".
	CountryCode(ctx context.Context, countryID int64) (string, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	// RoleByName matches case-insensitively; models.ErrNotFound when absent.
	RoleByName(ctx context.Context, name string) (*models.Role, error)
	// DefaultOfficeID returns the first office, creating a default country
	// and office when none exist.
	DefaultOfficeID(ctx context.Context) (int64, error)
}

// UserStore persists portal accounts.
type UserStore interface {
	// GetUserByEmail returns models.ErrNotFound when absent.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUserByID returns models.ErrNotFound when absent.
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	// InsertUser returns models.ErrConflict for a duplicate email.
	InsertUser(ctx context.Context, u *models.User) (int64, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// UpdateUser reports whether a row matched; models.ErrConflict for a
	// duplicate email.
	UpdateUser(ctx context.Context, id int64, update models.UserUpdate) (bool, error)
}

// DocumentStore persists document metadata.
type DocumentStore interface {
	InsertDocument(ctx context.Context, d *models.Document) (int64, error)
	ListDocuments(ctx context.Context, requestID int64) ([]models.Document, error)
}

// AuditStore persists the append-only audit log.
type AuditStore interface {
	InsertAuditLog(ctx context.Context, e *models.AuditLogEntry) (int64, error)
	ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error)
}

// Repository is the full relational store.
type Repository interface {
	ClaimantStore
	RequestStore
	ReferenceStore
	UserStore
	DocumentStore
	AuditStore

	// InTx runs fn inside one transaction. The Repository passed to fn is
	// bound to the transaction; fn returning an error rolls everything back.
	// Nested calls join the outer transaction.
	InTx(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
}

// DefaultAuditLimit caps audit listings without an explicit limit.
const DefaultAuditLimit = 100

// MaxAuditLimit caps any audit listing.
const MaxAuditLimit = 1000

// ClampAuditLimit normalizes an audit listing limit to [1, MaxAuditLimit].
func ClampAuditLimit(limit int) int {
	if limit <= 0 {
		return DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		return MaxAuditLimit
	}
	return limit
}
