package iam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ListUsersSQL = `SELECT * FROM "users" AS "usr" ORDER BY "usr"."email" ASC;`

var DeleteUserSQL = `DELETE FROM "users" WHERE "id" = ? RETURNING *;`

var UpdateUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

var UpdateUserActiveSQL = `UPDATE "users" AS "usr"
SET
	"active" = ?,
	"updated_at" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

// ActivatePendingClientSQL sets the first password of a client that has
// never been activated. A row that is active or already has a password
// is left alone.
var ActivatePendingClientSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"active" = TRUE,
	"updated_at" = ?
WHERE
	"usr"."id" = ?
AND "usr"."active" = FALSE
AND COALESCE("usr"."password_hash", '') = ''
AND "usr"."kind" IN (?, ?)
RETURNING *;`

// profileColumns are the only columns UpdateProfile writes. Email, role,
// permissions, username, kind and account numbers stay as stored.
var profileColumns = []string{
	"phone_number", "address", "date_of_birth",
	"first_name", "last_name", "gender",
	"position", "department",
	"tax_id_number", "registration_number",
	"updated_at",
}

// UserRepository persists users through go-repository-bun. It satisfies
// UserFinder, PasswordStore, EmployeeStore and AccountStore.
type UserRepository struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ UserFinder    = (*UserRepository)(nil)
	_ PasswordStore = (*UserRepository)(nil)
	_ EmployeeStore = (*UserRepository)(nil)
	_ AccountStore  = (*UserRepository)(nil)
)

func NewUserRepository(db *bun.DB) *UserRepository {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &UserRepository{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

// CreateSchema creates the users table when missing
func (r *UserRepository) CreateSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create users table")
	}
	return nil
}

// GetByIdentifier resolves a row by id when identifier is a UUID and by
// case insensitive email otherwise.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return r.GetByIdentifierTx(ctx, r.db, identifier, criteria...)
}

func (r *UserRepository) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	identifier = strings.TrimSpace(identifier)

	column, value := "lower(?TableAlias.email)", normalizeEmail(identifier)
	if id, err := uuid.Parse(identifier); err == nil {
		column, value = "?TableAlias.id", id.String()
	}

	record := &User{}
	q := tx.NewSelect().Model(record)
	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.Where(fmt.Sprintf("%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	if strings.TrimSpace(email) == "" {
		return nil, withMeta(ErrUserNotFound, nil, map[string]any{"email": email})
	}
	row, err := r.GetByIdentifier(ctx, email)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"email": email})
	}
	return row.Record(), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*UserRecord, error) {
	row, err := r.Repository.GetByID(ctx, id.String())
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id.String()})
	}
	return row.Record(), nil
}

// FindAll returns every user ordered by email
func (r *UserRepository) FindAll(ctx context.Context) ([]*UserRecord, error) {
	rows, err := r.Repository.RawTx(ctx, r.db, ListUsersSQL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list users")
	}

	out := make([]*UserRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Record())
	}
	return out, nil
}

// Create inserts rec with the given password hash. Missing ids are minted
// and a taken email or username yields ErrUserExists.
func (r *UserRepository) Create(ctx context.Context, rec *UserRecord, passwordHash string) (*UserRecord, error) {
	if rec == nil {
		return nil, goerrors.New("user record is required", goerrors.CategoryBadInput)
	}

	row := UserFromRecord(rec)
	row.PasswordHash = passwordHash
	r.prepareDefaults(row)

	created, err := r.Repository.CreateTx(ctx, r.db, row)
	if err != nil {
		meta := map[string]any{"email": row.Email}
		if isUniqueViolation(err) {
			return nil, withMeta(ErrUserExists, err, meta)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user").WithMetadata(meta)
	}

	if created == nil {
		created = row
	}
	return created.Record(), nil
}

// UpdateProfile writes the non identity columns of rec
func (r *UserRepository) UpdateProfile(ctx context.Context, rec *UserRecord) (*UserRecord, error) {
	if rec == nil {
		return nil, goerrors.New("user record is required", goerrors.CategoryBadInput)
	}

	row := UserFromRecord(rec)
	now := r.now()
	row.UpdatedAt = &now

	_, err := r.Repository.Update(ctx, row,
		repository.UpdateByID(rec.ID.String()),
		onlyColumns(profileColumns...),
	)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"id": rec.ID.String()})
	}

	return r.FindByID(ctx, rec.ID)
}

// DeleteByEmail removes the user and returns the deleted record
func (r *UserRepository) DeleteByEmail(ctx context.Context, email string) (*UserRecord, error) {
	rec, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	rows, err := r.Repository.RawTx(ctx, r.db, DeleteUserSQL, rec.ID.String())
	if err := expectRows(rows, err, map[string]any{"email": email}); err != nil {
		return nil, err
	}

	return rec, nil
}

func (r *UserRepository) PasswordHash(ctx context.Context, id uuid.UUID) (string, error) {
	row, err := r.Repository.GetByID(ctx, id.String())
	if err != nil {
		return "", notFoundOr(err, map[string]any{"id": id.String()})
	}
	return row.PasswordHash, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	rows, err := r.Repository.RawTx(ctx, r.db, UpdateUserPasswordSQL, hash, r.now(), id.String())
	return expectRows(rows, err, map[string]any{"id": id.String()})
}

func (r *UserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	rows, err := r.Repository.RawTx(ctx, r.db, UpdateUserActiveSQL, active, r.now(), id.String())
	return expectRows(rows, err, map[string]any{"id": id.String()})
}

// ActivateClient stores the first password hash of a pending client and
// marks it active in one statement. Unknown ids yield ErrUserNotFound and
// accounts that are not pending yield ErrAccountNotPending.
func (r *UserRepository) ActivateClient(ctx context.Context, id uuid.UUID, hash string) (*UserRecord, error) {
	meta := map[string]any{"id": id.String()}

	rows, err := r.Repository.RawTx(ctx, r.db, ActivatePendingClientSQL,
		hash, r.now(), id.String(), string(KindPrivateClient), string(KindCorporateClient))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user write failed").WithMetadata(meta)
	}

	if len(rows) == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, withMeta(ErrAccountNotPending, nil, meta)
	}

	return rows[0].Record(), nil
}

func (r *UserRepository) prepareDefaults(row *User) {
	row.Email = normalizeEmail(row.Email)
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Kind == "" {
		row.Kind = KindPlainUser
	}
	if row.Role == "" {
		row.Role = RoleUser
	}
	now := r.now()
	row.CreatedAt, row.UpdatedAt = &now, &now
}

func onlyColumns(columns ...string) repository.UpdateCriteria {
	return func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Column(columns...)
	}
}

func notFoundOr(err error, meta map[string]any) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return withMeta(ErrUserNotFound, nil, meta)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "user query failed").WithMetadata(meta)
}

func expectRows(rows []*User, err error, meta map[string]any) error {
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user write failed").WithMetadata(meta)
	}
	if len(rows) == 0 {
		return withMeta(ErrUserNotFound, nil, meta)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
			return true
		}
	}
	return false
}
