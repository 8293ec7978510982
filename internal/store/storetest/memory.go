// Package storetest provides an in-memory store.Repository for tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/store"
)

// Operation names accepted by MemoryStore.FailOn.
const (
	OpFindClaimant     = "FindClaimantByNationalID"
	OpInsertClaimant   = "InsertClaimant"
	OpNextSequence     = "NextRequestSequence"
	OpInsertRequest    = "InsertRequest"
	OpListRequests     = "ListRequests"
	OpGetRequest       = "GetRequest"
	OpUpdateStatus     = "UpdateRequestStatus"
	OpAssignRequest    = "AssignRequest"
	OpListRoles        = "ListRoles"
	OpInsertUser       = "InsertUser"
	OpInsertDocument   = "InsertDocument"
	OpInsertAuditLog   = "InsertAuditLog"
	OpListAuditLogs    = "ListAuditLogs"
	OpDefaultOfficeID  = "DefaultOfficeID"
	OpListUsers        = "ListUsers"
	OpListDocuments    = "ListDocuments"
	OpGetUserByEmail   = "GetUserByEmail"
	OpCountryCode      = "CountryCode"
	OpRequestExists    = "RequestExists"
	OpUpdateUser       = "UpdateUser"
	OpGetUserByID      = "GetUserByID"
	OpRoleByName       = "RoleByName"
	OpBeginTransaction = "InTx"
)

type memCountry struct {
	name string
	code *string
}

type memRequest struct {
	models.NewRequest
	id             int64
	assignedUserID *int64
}

type seqKey struct {
	code string
	year int
}

type memData struct {
	claimants map[int64]models.Claimant
	requests  map[int64]memRequest
	sequences map[seqKey]int64
	countries map[int64]memCountry
	offices   map[int64]models.Office
	roles     []models.Role
	users     map[int64]models.User
	documents []models.Document
	audit     []models.AuditLogEntry
	lastID    map[string]int64
}

func (d *memData) clone() *memData {
	c := &memData{
		claimants: make(map[int64]models.Claimant, len(d.claimants)),
		requests:  make(map[int64]memRequest, len(d.requests)),
		sequences: make(map[seqKey]int64, len(d.sequences)),
		countries: make(map[int64]memCountry, len(d.countries)),
		offices:   make(map[int64]models.Office, len(d.offices)),
		roles:     append([]models.Role(nil), d.roles...),
		users:     make(map[int64]models.User, len(d.users)),
		documents: append([]models.Document(nil), d.documents...),
		audit:     append([]models.AuditLogEntry(nil), d.audit...),
		lastID:    make(map[string]int64, len(d.lastID)),
	}
	for k, v := range d.claimants {
		c.claimants[k] = v
	}
	for k, v := range d.requests {
		c.requests[k] = v
	}
	for k, v := range d.sequences {
		c.sequences[k] = v
	}
	for k, v := range d.countries {
		c.countries[k] = v
	}
	for k, v := range d.offices {
		c.offices[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.lastID {
		c.lastID[k] = v
	}
	return c
}

func (d *memData) nextID(table string) int64 {
	d.lastID[table]++
	return d.lastID[table]
}

type fault struct {
	after int
	calls int
	err   error
}

type memShared struct {
	mu      sync.Mutex
	faults  map[string]*fault
	pingErr error
	now     func() time.Time
}

// MemoryStore is an in-process store.Repository. InTx
// works on a copy of the data that replaces the original only when fn
// succeeds, so failed units of work leave no trace.
type MemoryStore struct {
	shared *memShared
	data   *memData
	inTx   bool
}

// NewMemoryStore returns a store seeded with the reference countries and roles.
func NewMemoryStore() *MemoryStore {
	d := &memData{
		claimants: map[int64]models.Claimant{},
		requests:  map[int64]memRequest{},
		sequences: map[seqKey]int64{},
		countries: map[int64]memCountry{},
		offices:   map[int64]models.Office{},
		roles:     append([]models.Role(nil), models.DefaultRoles...),
		users:     map[int64]models.User{},
		lastID:    map[string]int64{},
	}
	for _, c := range models.Countries {
		code := c.CountryCode
		d.countries[c.ID] = memCountry{name: c.Name, code: &code}
		if c.ID > d.lastID["countries"] {
			d.lastID["countries"] = c.ID
		}
	}
	d.lastID["roles"] = int64(len(d.roles))

	return &MemoryStore{
		shared: &memShared{faults: map[string]*fault{}, now: time.Now},
		data:   d,
	}
}

func (m *MemoryStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.shared.mu.Lock()
	return m.shared.mu.Unlock
}

// FailOn makes op return err on every call after the first `after` calls.
func (m *MemoryStore) FailOn(op string, after int, err error) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.shared.faults[op] = &fault{after: after, err: err}
}

// ClearFailures removes every FailOn rule.
func (m *MemoryStore) ClearFailures() {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.shared.faults = map[string]*fault{}
}

// SetPingError makes Ping fail with err.
func (m *MemoryStore) SetPingError(err error) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.shared.pingErr = err
}

// SetClock overrides the timestamps assigned to new rows.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	m.shared.now = now
}

// caller holds the lock
func (m *MemoryStore) fail(op string) error {
	f, ok := m.shared.faults[op]
	if !ok {
		return nil
	}
	f.calls++
	if f.calls > f.after {
		return f.err
	}
	return nil
}

// SeedOffice adds an office and returns its id.
func (m *MemoryStore) SeedOffice(name string, countryID int64) int64 {
	defer m.lock()()
	id := m.data.nextID("offices")
	m.data.offices[id] = models.Office{ID: id, Name: name, CountryID: countryID}
	return id
}

// SeedUser adds a user. RoleName is resolved from RoleID when empty.
func (m *MemoryStore) SeedUser(u models.User) int64 {
	defer m.lock()()
	u.ID = m.data.nextID("users")
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.shared.now()
	}
	m.data.users[u.ID] = u
	return u.ID
}

// SetCountry replaces a country row. A nil code stores NULL.
func (m *MemoryStore) SetCountry(id int64, name string, code *string) {
	defer m.lock()()
	m.data.countries[id] = memCountry{name: name, code: code}
}

// RemoveCountry deletes a country row.
func (m *MemoryStore) RemoveCountry(id int64) {
	defer m.lock()()
	delete(m.data.countries, id)
}

// ClearRoles empties the roles table.
func (m *MemoryStore) ClearRoles() {
	defer m.lock()()
	m.data.roles = nil
}

// ClaimantCount returns the number of stored claimants.
func (m *MemoryStore) ClaimantCount() int {
	defer m.lock()()
	return len(m.data.claimants)
}

// RequestCount returns the number of stored requests.
func (m *MemoryStore) RequestCount() int {
	defer m.lock()()
	return len(m.data.requests)
}

// DocumentCount returns the number of stored documents.
func (m *MemoryStore) DocumentCount() int {
	defer m.lock()()
	return len(m.data.documents)
}

// AuditEntries returns the audit log in insertion order.
func (m *MemoryStore) AuditEntries() []models.AuditLogEntry {
	defer m.lock()()
	return append([]models.AuditLogEntry(nil), m.data.audit...)
}

// InTx runs fn against a private copy of the data.
func (m *MemoryStore) InTx(ctx context.Context, fn func(store.Repository) error) error {
	if m.inTx {
		return fn(m)
	}
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	if err := m.fail(OpBeginTransaction); err != nil {
		return err
	}
	tx := &MemoryStore{shared: m.shared, data: m.data.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	m.data = tx.data
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	defer m.lock()()
	return m.shared.pingErr
}

func (m *MemoryStore) FindClaimantByNationalID(ctx context.Context, nationalID string) (*models.Claimant, error) {
	defer m.lock()()
	if err := m.fail(OpFindClaimant); err != nil {
		return nil, err
	}
	for _, c := range m.data.claimants {
		if c.NationalID == nationalID {
			found := c
			return &found, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryStore) InsertClaimant(ctx context.Context, c *models.Claimant) (int64, bool, error) {
	defer m.lock()()
	if err := m.fail(OpInsertClaimant); err != nil {
		return 0, false, err
	}
	for _, existing := range m.data.claimants {
		if existing.NationalID == c.NationalID {
			return existing.ID, false, nil
		}
	}
	stored := *c
	stored.ID = m.data.nextID("claimants")
	stored.CreatedAt = m.shared.now()
	m.data.claimants[stored.ID] = stored
	return stored.ID, true, nil
}

func (m *MemoryStore) NextRequestSequence(ctx context.Context, countryCode string, year int) (int64, error) {
	defer m.lock()()
	if err := m.fail(OpNextSequence); err != nil {
		return 0, err
	}
	key := seqKey{code: countryCode, year: year}
	m.data.sequences[key]++
	return m.data.sequences[key], nil
}

func (m *MemoryStore) InsertRequest(ctx context.Context, r *models.NewRequest) (int64, error) {
	defer m.lock()()
	if err := m.fail(OpInsertRequest); err != nil {
		return 0, err
	}
	for _, existing := range m.data.requests {
		if existing.RequestNumber == r.RequestNumber {
			return 0, models.NewConflictError("Request number already issued")
		}
	}
	if _, ok := m.data.claimants[r.ClaimantID]; !ok {
		return 0, models.NewValidationError("Unknown claimant")
	}
	id := m.data.nextID("requests")
	stored := memRequest{NewRequest: *r, id: id}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.shared.now()
	}
	m.data.requests[id] = stored
	return id, nil
}

func (m *MemoryStore) record(r memRequest) models.RequestRecord {
	c := m.data.claimants[r.ClaimantID]
	rec := models.RequestRecord{
		ID:                  r.id,
		RequestNumber:       r.RequestNumber,
		Status:              r.Status,
		CreatedAt:           r.CreatedAt,
		ClaimantID:          c.ID,
		FirstName:           c.FirstName,
		LastName:            c.LastName,
		DOB:                 c.DOB.Format(models.DateLayout),
		NationalID:          c.NationalID,
		RequestingCountryID: r.RequestingCountryID,
		TargetCountryID:     r.TargetCountryID,
		BenefitTypeID:       r.BenefitTypeID,
		EmploymentPeriod:    r.EmploymentPeriod,
		Description:         r.Description,
	}
	if r.assignedUserID != nil {
		id := *r.assignedUserID
		rec.AssignedUserID = &id
		if u, ok := m.data.users[id]; ok {
			name := u.FirstName + " " + u.LastName
			rec.AssignedTo = &name
		}
	}
	return rec
}

func (m *MemoryStore) ListRequests(ctx context.Context) ([]models.RequestRecord, error) {
	defer m.lock()()
	if err := m.fail(OpListRequests); err != nil {
		return nil, err
	}
	out := make([]models.RequestRecord, 0, len(m.data.requests))
	for _, r := range m.data.requests {
		out = append(out, m.record(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, id int64) (*models.RequestRecord, error) {
	defer m.lock()()
	if err := m.fail(OpGetRequest); err != nil {
		return nil, err
	}
	r, ok := m.data.requests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	rec := m.record(r)
	return &rec, nil
}

func (m *MemoryStore) RequestExists(ctx context.Context, id int64) (bool, error) {
	defer m.lock()()
	if err := m.fail(OpRequestExists); err != nil {
		return false, err
	}
	_, ok := m.data.requests[id]
	return ok, nil
}

func (m *MemoryStore) UpdateRequestStatus(ctx context.Context, id int64, status models.RequestStatus) (bool, error) {
	defer m.lock()()
	if err := m.fail(OpUpdateStatus); err != nil {
		return false, err
	}
	r, ok := m.data.requests[id]
	if !ok {
		return false, nil
	}
	r.Status = status
	m.data.requests[id] = r
	return true, nil
}

func (m *MemoryStore) AssignRequest(ctx context.Context, id, userID int64) (bool, error) {
	defer m.lock()()
	if err := m.fail(OpAssignRequest); err != nil {
		return false, err
	}
	r, ok := m.data.requests[id]
	if !ok {
		return false, nil
	}
	assignee := userID
	r.assignedUserID = &assignee
	m.data.requests[id] = r
	return true, nil
}

func (m *MemoryStore) CountryCode(ctx context.Context, countryID int64) (string, error) {
	defer m.lock()()
	if err := m.fail(OpCountryCode); err != nil {
		return "", err
	}
	c, ok := m.data.countries[countryID]
	if !ok {
		return "", models.ErrNotFound
	}
	if c.code == nil {
		return "", nil
	}
	return strings.TrimSpace(*c.code), nil
}

func (m *MemoryStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	defer m.lock()()
	if err := m.fail(OpListRoles); err != nil {
		return nil, err
	}
	return append([]models.Role{}, m.data.roles...), nil
}

func (m *MemoryStore) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	defer m.lock()()
	if err := m.fail(OpRoleByName); err != nil {
		return nil, err
	}
	for _, r := range m.data.roles {
		if strings.EqualFold(r.Name, strings.TrimSpace(name)) {
			found := r
			return &found, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryStore) DefaultOfficeID(ctx context.Context) (int64, error) {
	defer m.lock()()
	if err := m.fail(OpDefaultOfficeID); err != nil {
		return 0, err
	}
	var first int64
	for id := range m.data.offices {
		if first == 0 || id < first {
			first = id
		}
	}
	if first != 0 {
		return first, nil
	}

	var countryID int64
	for id := range m.data.countries {
		if countryID == 0 || id < countryID {
			countryID = id
		}
	}
	if countryID == 0 {
		code := "DF"
		countryID = m.data.nextID("countries")
		m.data.countries[countryID] = memCountry{name: "Default Country", code: &code}
	}
	officeID := m.data.nextID("offices")
	m.data.offices[officeID] = models.Office{ID: officeID, Name: "Default Office", CountryID: countryID}
	return officeID, nil
}

// resolveUser fills the joined role and office fields.
func (m *MemoryStore) resolveUser(u models.User) models.User {
	for _, r := range m.data.roles {
		if r.ID == u.RoleID {
			u.RoleName = r.Name
		}
	}
	u.OfficeName = nil
	u.CountryID = nil
	if u.OfficeID != nil {
		if o, ok := m.data.offices[*u.OfficeID]; ok {
			name, country := o.Name, o.CountryID
			u.OfficeName = &name
			u.CountryID = &country
		}
	}
	return u
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer m.lock()()
	if err := m.fail(OpGetUserByEmail); err != nil {
		return nil, err
	}
	for _, u := range m.data.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			resolved := m.resolveUser(u)
			return &resolved, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	defer m.lock()()
	if err := m.fail(OpGetUserByID); err != nil {
		return nil, err
	}
	u, ok := m.data.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	resolved := m.resolveUser(u)
	return &resolved, nil
}

func (m *MemoryStore) emailTaken(email string, except int64) bool {
	for id, u := range m.data.users {
		if id != except && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) InsertUser(ctx context.Context, u *models.User) (int64, error) {
	defer m.lock()()
	if err := m.fail(OpInsertUser); err != nil {
		return 0, err
	}
	if m.emailTaken(u.Email, 0) {
		return 0, models.NewConflictError("Email already registered")
	}
	stored := *u
	stored.ID = m.data.nextID("users")
	stored.CreatedAt = m.shared.now()
	m.data.users[stored.ID] = stored
	return stored.ID, nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	defer m.lock()()
	if err := m.fail(OpListUsers); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(m.data.users))
	for _, u := range m.data.users {
		out = append(out, m.resolveUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, id int64, update models.UserUpdate) (bool, error) {
	defer m.lock()()
	if err := m.fail(OpUpdateUser); err != nil {
		return false, err
	}
	u, ok := m.data.users[id]
	if !ok {
		return false, nil
	}
	if update.FirstName != nil {
		u.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		u.LastName = *update.LastName
	}
	if update.Email != nil {
		if m.emailTaken(*update.Email, id) {
			return false, models.NewConflictError("Email already registered")
		}
		u.Email = *update.Email
	}
	if update.RoleID != nil {
		u.RoleID = *update.RoleID
	}
	m.data.users[id] = u
	return true, nil
}

func (m *MemoryStore) InsertDocument(ctx context.Context, d *models.Document) (int64, error) {
	defer m.lock()()
	if err := m.fail(OpInsertDocument); err != nil {
		return 0, err
	}
	stored := *d
	stored.ID = m.data.nextID("documents")
	if stored.UploadedAt.IsZero() {
		stored.UploadedAt = m.shared.now()
	}
	m.data.documents = append(m.data.documents, stored)
	return stored.ID, nil
}

func (m *MemoryStore) ListDocuments(ctx context.Context, requestID int64) ([]models.Document, error) {
	defer m.lock()()
	if err := m.fail(OpListDocuments); err != nil {
		return nil, err
	}
	out := []models.Document{}
	for _, d := range m.data.documents {
		if d.RequestID == requestID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) InsertAuditLog(ctx context.Context, e *models.AuditLogEntry) (int64, error) {
	defer m.lock()()
	if err := m.fail(OpInsertAuditLog); err != nil {
		return 0, err
	}
	stored := *e
	stored.ID = m.data.nextID("audit_logs")
	stored.CreatedAt = m.shared.now()
	m.data.audit = append(m.data.audit, stored)
	return stored.ID, nil
}

func (m *MemoryStore) ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	defer m.lock()()
	if err := m.fail(OpListAuditLogs); err != nil {
		return nil, err
	}
	out := []models.AuditLogEntry{}
	for i := len(m.data.audit) - 1; i >= 0; i-- {
		e := m.data.audit[i]
		if filter.EntityType != "" && !strings.EqualFold(e.EntityType, filter.EntityType) {
			continue
		}
		if filter.EntityID != nil && (e.EntityID == nil || *e.EntityID != *filter.EntityID) {
			continue
		}
		out = append(out, e)
		if len(out) == store.ClampAuditLimit(filter.Limit) {
			break
		}
	}
	return out, nil
}

var _ store.Repository = (*MemoryStore)(nil)
