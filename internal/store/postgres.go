package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/utils"
)

// DBTX is the query surface shared by a pool and a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a connection pool: queries plus transactions and health checks.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Repository on PostgreSQL through pgx.
type PostgresStore struct {
	db   DBTX
	pool DB
}

var _ Repository = (*PostgresStore)(nil)

// NewPostgresStore creates a store over a pool such as *pgxpool.Pool.
func NewPostgresStore(pool DB) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

// InTx runs fn in a transaction. A store already bound to a transaction
// runs fn directly.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Repository) error) error {
	if s.pool == nil {
		return fn(s)
	}

	ctx, span, cleanup := utils.TraceDatabaseOperation(ctx, "transaction", "")
	defer cleanup()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		observe("begin", err)
		return fmt.Errorf("begin transaction: %w", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PostgresStore{db: tx}); err != nil {
		utils.RecordErrorInSpan(span, err, map[string]interface{}{"db.rollback": true})
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		observe("commit", err)
		return fmt.Errorf("commit transaction: %w", err)
	}
	observe("commit", nil)
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

func observe(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.DatabaseOperations.WithLabelValues(operation, status).Inc()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Claimants

func (s *PostgresStore) FindClaimantByNationalID(ctx context.Context, nationalID string) (*models.Claimant, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "select", "claimants")
	defer cleanup()

	var c models.Claimant
	err := s.db.QueryRow(ctx, `
		SELECT claimant_id, first_name, last_name, dob, national_id, created_at
		FROM claimants
		WHERE national_id = $1`, nationalID,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &c.DOB, &c.NationalID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		observe("find_claimant", nil)
		return nil, models.ErrNotFound
	}
	observe("find_claimant", err)
	if err != nil {
		return nil, fmt.Errorf("find claimant: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) InsertClaimant(ctx context.Context, c *models.Claimant) (int64, bool, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "insert", "claimants")
	defer cleanup()

	// a concurrent insert of the same national id blocks here until it
	// commits, then conflicts and falls through to the re-select
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO claimants (first_name, last_name, dob, national_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (national_id) DO NOTHING
		RETURNING claimant_id`,
		c.FirstName, c.LastName, c.DOB, c.NationalID,
	).Scan(&id)
	if err == nil {
		observe("insert_claimant", nil)
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		observe("insert_claimant", err)
		return 0, false, fmt.Errorf("insert claimant: %w", err)
	}

	err = s.db.QueryRow(ctx, `SELECT claimant_id FROM claimants WHERE national_id = $1`, c.NationalID).Scan(&id)
	observe("insert_claimant", err)
	if err != nil {
		return 0, false, fmt.Errorf("reselect claimant: %w", err)
	}
	return id, false, nil
}

// Requests

func (s *PostgresStore) NextRequestSequence(ctx context.Context, countryCode string, year int) (int64, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "upsert", "request_number_sequences")
	defer cleanup()

	// the upsert takes a row lock held until the surrounding transaction ends
	var next int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO request_number_sequences (country_code, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (country_code, year)
		DO UPDATE SET last_value = request_number_sequences.last_value + 1
		RETURNING last_value`,
		countryCode, year,
	).Scan(&next)
	observe("next_request_sequence", err)
	if err != nil {
		return 0, fmt.Errorf("reserve request number: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) InsertRequest(ctx context.Context, r *models.NewRequest) (int64, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "insert", "requests")
	defer cleanup()

	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO requests (
			request_number, claimant_id, requesting_country_id, target_country_id,
			benefit_type_id, employment_period, description, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING request_id`,
		r.RequestNumber, r.ClaimantID, r.RequestingCountryID, r.TargetCountryID,
		r.BenefitTypeID, r.EmploymentPeriod, r.Description, string(r.Status), r.CreatedAt,
	).Scan(&id)
	observe("insert_request", err)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, models.NewConflictError("Request number already issued")
		}
		return 0, fmt.Errorf("insert request: %w", err)
	}
	return id, nil
}

const requestSelect = `
	SELECT
		r.request_id,
		r.request_number,
		r.status,
		r.created_at,
		c.claimant_id,
		c.first_name,
		c.last_name,
		c.dob,
		c.national_id,
		r.requesting_country_id,
		r.target_country_id,
		r.benefit_type_id,
		r.employment_period,
		r.description,
		r.assigned_user_id,
		CASE WHEN u.user_id IS NULL THEN NULL ELSE u.first_name || ' ' || u.last_name END AS assigned_to
	FROM requests r
	JOIN claimants c ON r.claimant_id = c.claimant_id
	LEFT JOIN users u ON r.assigned_user_id = u.user_id`

func scanRequest(row pgx.Row) (models.RequestRecord, error) {
	var (
		r      models.RequestRecord
		status string
		dob    time.Time
	)
	err := row.Scan(
		&r.ID, &r.RequestNumber, &status, &r.CreatedAt,
		&r.ClaimantID, &r.FirstName, &r.LastName, &dob, &r.NationalID,
		&r.RequestingCountryID, &r.TargetCountryID, &r.BenefitTypeID,
		&r.EmploymentPeriod, &r.Description, &r.AssignedUserID, &r.AssignedTo,
	)
	if err != nil {
		return r, err
	}
	r.Status = models.RequestStatus(status)
	r.DOB = dob.Format(models.DateLayout)
	return r, nil
}

func (s *PostgresStore) ListRequests(ctx context.Context) ([]models.RequestRecord, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "select", "requests")
	defer cleanup()

	rows, err := s.db.Query(ctx, requestSelect+`
	ORDER BY r.created_at DESC, r.request_id DESC`)
	if err != nil {
		observe("list_requests", err)
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	out := []models.RequestRecord{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			observe("list_requests", err)
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	err = rows.Err()
	observe("list_requests", err)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id int64) (*models.RequestRecord, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "select", "requests")
	defer cleanup()

	r, err := scanRequest(s.db.QueryRow(ctx, requestSelect+`
	WHERE r.request_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		observe("get_request", nil)
		return nil, models.ErrNotFound
	}
	observe("get_request", err)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) RequestExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE request_id = $1)`, id).Scan(&exists)
	observe("request_exists", err)
	if err != nil {
		return false, fmt.Errorf("request lookup: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateRequestStatus(ctx context.Context, id int64, status models.RequestStatus) (bool, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "update", "requests")
	defer cleanup()

	tag, err := s.db.Exec(ctx, `UPDATE requests SET status = $1 WHERE request_id = $2`, string(status), id)
	observe("update_request_status", err)
	if err != nil {
		return false, fmt.Errorf("update request status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) AssignRequest(ctx context.Context, id, userID int64) (bool, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "update", "requests")
	defer cleanup()

	tag, err := s.db.Exec(ctx, `UPDATE requests SET assigned_user_id = $1 WHERE request_id = $2`, userID, id)
	observe("assign_request", err)
	if err != nil {
		return false, fmt.Errorf("assign request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reference data

func (s *PostgresStore) CountryCode(ctx context.Context, countryID int64) (string, error) {
	var code *string
	err := s.db.QueryRow(ctx, `SELECT country_code FROM countries WHERE country_id = $1`, countryID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		observe("country_code", nil)
		return "", models.ErrNotFound
	}
	observe("country_code", err)
	if err != nil {
		return "", fmt.Errorf("country code: %w", err)
	}
	if code == nil {
		return "", nil
	}
	return strings.TrimSpace(*code), nil
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := s.db.Query(ctx, `SELECT role_id, role_name FROM roles ORDER BY role_id`)
	if err != nil {
		observe("list_roles", err)
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Role, error) {
		var r models.Role
		err := row.Scan(&r.ID, &r.Name)
		return r, err
	})
	observe("list_roles", err)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

func (s *PostgresStore) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	var r models.Role
	err := s.db.QueryRow(ctx, `SELECT role_id, role_name FROM roles WHERE lower(role_name) = lower($1)`, strings.TrimSpace(name)).Scan(&r.ID, &r.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		observe("role_by_name", nil)
		return nil, models.ErrNotFound
	}
	observe("role_by_name", err)
	if err != nil {
		return nil, fmt.Errorf("role lookup: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) DefaultOfficeID(ctx context.Context) (int64, error) {
	var officeID int64
	err := s.db.QueryRow(ctx, `SELECT office_id FROM nis_office ORDER BY office_id LIMIT 1`).Scan(&officeID)
	if err == nil {
		return officeID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		observe("default_office", err)
		return 0, fmt.Errorf("default office: %w", err)
	}

	var countryID int64
	err = s.db.QueryRow(ctx, `SELECT country_id FROM countries ORDER BY country_id LIMIT 1`).Scan(&countryID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.db.QueryRow(ctx, `
			INSERT INTO countries (country_name, country_code)
			VALUES ('Default Country', 'DF')
			RETURNING country_id`).Scan(&countryID)
	}
	if err != nil {
		observe("default_office", err)
		return 0, fmt.Errorf("default country: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO nis_office (office_name, country_id)
		VALUES ('Default Office', $1)
		RETURNING office_id`, countryID).Scan(&officeID)
	observe("default_office", err)
	if err != nil {
		return 0, fmt.Errorf("create default office: %w", err)
	}
	return officeID, nil
}

// Users

const userSelect = `
	SELECT
		u.user_id, u.first_name, u.last_name, u.email, u.password_hash,
		u.role_id, r.role_name, u.office_id, o.office_name, o.country_id, u.created_at
	FROM users u
	JOIN roles r ON r.role_id = u.role_id
	LEFT JOIN nis_office o ON o.office_id = u.office_id`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.RoleID, &u.RoleName, &u.OfficeID, &u.OfficeName, &u.CountryID, &u.CreatedAt,
	)
	return u, err
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "select", "users")
	defer cleanup()

	u, err := scanUser(s.db.QueryRow(ctx, userSelect+"\n\tWHERE "+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		observe("get_user", nil)
		return nil, models.ErrNotFound
	}
	observe("get_user", err)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "lower(u.email) = lower($1)", strings.TrimSpace(email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "u.user_id = $1", id)
}

func (s *PostgresStore) InsertUser(ctx context.Context, u *models.User) (int64, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "insert", "users")
	defer cleanup()

	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (first_name, last_name, email, password_hash, role_id, office_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING user_id`,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.RoleID, u.OfficeID,
	).Scan(&id)
	observe("insert_user", err)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, models.NewConflictError("Email already registered")
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "select", "users")
	defer cleanup()

	rows, err := s.db.Query(ctx, userSelect+`
	ORDER BY u.user_id`)
	if err != nil {
		observe("list_users", err)
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.User, error) {
		return scanUser(row)
	})
	observe("list_users", err)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id int64, update models.UserUpdate) (bool, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "update", "users")
	defer cleanup()

	sets := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.FirstName != nil {
		add("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		add("last_name", *update.LastName)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.RoleID != nil {
		add("role_id", *update.RoleID)
	}
	if len(sets) == 0 {
		return false, models.NewValidationError("No fields to update")
	}
	args = append(args, id)

	tag, err := s.db.Exec(ctx,
		fmt.Sprintf("UPDATE users SET %s WHERE user_id = $%d", strings.Join(sets, ", "), len(args)),
		args...)
	observe("update_user", err)
	if err != nil {
		if isUniqueViolation(err) {
			return false, models.NewConflictError("Email already registered")
		}
		return false, fmt.Errorf("update user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Documents

func (s *PostgresStore) InsertDocument(ctx context.Context, d *models.Document) (int64, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "insert", "documents")
	defer cleanup()

	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO documents (request_id, file_name, file_path, file_type, file_size, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING document_id`,
		d.RequestID, d.FileName, d.FilePath, d.FileType, d.FileSize, d.UploadedBy, d.UploadedAt,
	).Scan(&id)
	observe("insert_document", err)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, requestID int64) ([]models.Document, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "select", "documents")
	defer cleanup()

	rows, err := s.db.Query(ctx, `
		SELECT document_id, request_id, file_name, file_path, file_type, file_size,
			COALESCE(uploaded_by, 0), uploaded_at
		FROM documents
		WHERE request_id = $1
		ORDER BY uploaded_at DESC, document_id DESC`, requestID)
	if err != nil {
		observe("list_documents", err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Document, error) {
		var d models.Document
		err := row.Scan(&d.ID, &d.RequestID, &d.FileName, &d.FilePath, &d.FileType, &d.FileSize, &d.UploadedBy, &d.UploadedAt)
		return d, err
	})
	observe("list_documents", err)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Audit log

func (s *PostgresStore) InsertAuditLog(ctx context.Context, e *models.AuditLogEntry) (int64, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "insert", "audit_logs")
	defer cleanup()

	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO audit_logs (user_id, action_type, entity_type, entity_id, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING log_id`,
		e.UserID, e.ActionType, e.EntityType, e.EntityID, e.Description,
	).Scan(&id)
	observe("insert_audit_log", err)
	if err != nil {
		return 0, fmt.Errorf("insert audit log: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "select", "audit_logs")
	defer cleanup()

	where := []string{}
	args := []any{}
	if filter.EntityType != "" {
		args = append(args, strings.ToUpper(filter.EntityType))
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != nil {
		args = append(args, *filter.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	query := `SELECT log_id, user_id, action_type, entity_type, entity_id, description, created_at FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, ClampAuditLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC, log_id DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		observe("list_audit_logs", err)
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AuditLogEntry, error) {
		var e models.AuditLogEntry
		err := row.Scan(&e.ID, &e.UserID, &e.ActionType, &e.EntityType, &e.EntityID, &e.Description, &e.CreatedAt)
		return e, err
	})
	observe("list_audit_logs", err)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}
