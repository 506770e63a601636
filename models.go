package iam

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleType is the coarse role carried by claims and user records
type RoleType string

const (
	RoleAdmin    RoleType = "ADMIN"
	RoleEmployee RoleType = "EMPLOYEE"
	RoleUser     RoleType = "USER"
)

// Roles lists every known role
var Roles = []RoleType{RoleAdmin, RoleEmployee, RoleUser}

// IsValid reports whether r is one of the known roles
func (r RoleType) IsValid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleUser:
		return true
	}
	return false
}

// ParseRole normalizes s into a RoleType. Unknown values return false.
func ParseRole(s string) (RoleType, bool) {
	r := RoleType(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.IsValid()
}

// PermissionType is a fine grained capability attached to a user
type PermissionType string

const (
	PermissionReadUsers      PermissionType = "READ_USERS"
	PermissionUpdateUsers    PermissionType = "UPDATE_USERS"
	PermissionDeleteUsers    PermissionType = "DELETE_USERS"
	PermissionManageAccounts PermissionType = "MANAGE_ACCOUNTS"
	PermissionManageLoans    PermissionType = "MANAGE_LOANS"
)

// UserKind tags which variant a UserRecord holds
type UserKind string

const (
	KindEmployee        UserKind = "employee"
	KindPrivateClient   UserKind = "private_client"
	KindCorporateClient UserKind = "corporate_client"
	KindPlainUser       UserKind = "user"
)

// EmployeeDetails holds fields only employees carry
type EmployeeDetails struct {
	Name       string `json:"name,omitempty"`
	Surname    string `json:"surname,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Position   string `json:"position,omitempty"`
	Department string `json:"department,omitempty"`
}

// PrivateClientDetails holds fields only private clients carry
type PrivateClientDetails struct {
	PrimaryAccountNumber string `json:"primaryAccountNumber,omitempty"`
	Name                 string `json:"name,omitempty"`
	Surname              string `json:"surname,omitempty"`
	Gender               string `json:"gender,omitempty"`
}

// CorporateClientDetails holds fields only corporate clients carry
type CorporateClientDetails struct {
	PrimaryAccountNumber string `json:"primaryAccountNumber,omitempty"`
	Name                 string `json:"name,omitempty"`
	TaxIDNumber          string `json:"taxIdNumber,omitempty"`
	RegistrationNumber   string `json:"registrationNumber,omitempty"`
}

// UserRecord is an immutable snapshot of a user. Kind selects which of the
// detail pointers is populated; the others stay nil.
type UserRecord struct {
	ID          uuid.UUID        `json:"id"`
	Kind        UserKind         `json:"kind"`
	Email       string           `json:"email"`
	Username    string           `json:"username"`
	Role        RoleType         `json:"role"`
	Permissions []PermissionType `json:"permissions,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	Address     string           `json:"address,omitempty"`
	DateOfBirth *time.Time       `json:"dateOfBirth,omitempty"`
	Active      bool             `json:"active"`

	Employee        *EmployeeDetails        `json:"employee,omitempty"`
	PrivateClient   *PrivateClientDetails   `json:"privateClient,omitempty"`
	CorporateClient *CorporateClientDetails `json:"corporateClient,omitempty"`
}

// PrimaryAccountNumber returns the client account number, empty for non clients
func (u UserRecord) PrimaryAccountNumber() string {
	switch u.Kind {
	case KindPrivateClient:
		if u.PrivateClient != nil {
			return u.PrivateClient.PrimaryAccountNumber
		}
	case KindCorporateClient:
		if u.CorporateClient != nil {
			return u.CorporateClient.PrimaryAccountNumber
		}
	}
	return ""
}

// HasPermission reports whether p is in the record's permission set
func (u UserRecord) HasPermission(p PermissionType) bool {
	for _, candidate := range u.Permissions {
		if candidate == p {
			return true
		}
	}
	return false
}

// PasswordResetToken is a single use credential bound to one email
type PasswordResetToken struct {
	TokenID    string    `json:"token"`
	BoundEmail string    `json:"email"`
	URLLink    string    `json:"urlLink"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Consumed   bool      `json:"-"`
}

// RateLimitEntry records the last allowed reset initiation for an email
type RateLimitEntry struct {
	Email         string
	LastRequestAt time.Time
}

// User is the persisted user row
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Kind          UserKind   `bun:"kind,notnull" json:"kind,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Role          RoleType   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Permissions   []string   `bun:"permissions,type:jsonb" json:"permissions,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	Address       string     `bun:"address" json:"address,omitempty"`
	DateOfBirth   *time.Time `bun:"date_of_birth,nullzero" json:"date_of_birth,omitempty"`
	Active        bool       `bun:"active,notnull" json:"active"`

	FirstName            string `bun:"first_name" json:"first_name,omitempty"`
	LastName             string `bun:"last_name" json:"last_name,omitempty"`
	Gender               string `bun:"gender" json:"gender,omitempty"`
	Position             string `bun:"position" json:"position,omitempty"`
	Department           string `bun:"department" json:"department,omitempty"`
	PrimaryAccountNumber string `bun:"primary_account_number" json:"primary_account_number,omitempty"`
	TaxIDNumber          string `bun:"tax_id_number" json:"tax_id_number,omitempty"`
	RegistrationNumber   string `bun:"registration_number" json:"registration_number,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Record projects the row into its tagged variant
func (u *User) Record() *UserRecord {
	if u == nil {
		return nil
	}

	perms := make([]PermissionType, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		perms = append(perms, PermissionType(p))
	}

	rec := &UserRecord{
		ID:          u.ID,
		Kind:        u.Kind,
		Email:       u.Email,
		Username:    u.Username,
		Role:        u.Role,
		Permissions: perms,
		Phone:       u.Phone,
		Address:     u.Address,
		DateOfBirth: u.DateOfBirth,
		Active:      u.Active,
	}

	switch u.Kind {
	case KindEmployee:
		rec.Employee = &EmployeeDetails{
			Name:       u.FirstName,
			Surname:    u.LastName,
			Gender:     u.Gender,
			Position:   u.Position,
			Department: u.Department,
		}
	case KindPrivateClient:
		rec.PrivateClient = &PrivateClientDetails{
			PrimaryAccountNumber: u.PrimaryAccountNumber,
			Name:                 u.FirstName,
			Surname:              u.LastName,
			Gender:               u.Gender,
		}
	case KindCorporateClient:
		rec.CorporateClient = &CorporateClientDetails{
			PrimaryAccountNumber: u.PrimaryAccountNumber,
			Name:                 u.FirstName,
			TaxIDNumber:          u.TaxIDNumber,
			RegistrationNumber:   u.RegistrationNumber,
		}
	}

	return rec
}

// UserFromRecord flattens a record into a row. The password hash is left empty.
func UserFromRecord(rec *UserRecord) *User {
	if rec == nil {
		return nil
	}

	perms := make([]string, 0, len(rec.Permissions))
	for _, p := range rec.Permissions {
		perms = append(perms, string(p))
	}

	u := &User{
		ID:          rec.ID,
		Kind:        rec.Kind,
		Email:       rec.Email,
		Username:    rec.Username,
		Role:        rec.Role,
		Permissions: perms,
		Phone:       rec.Phone,
		Address:     rec.Address,
		DateOfBirth: rec.DateOfBirth,
		Active:      rec.Active,
	}

	switch rec.Kind {
	case KindEmployee:
		if d := rec.Employee; d != nil {
			u.FirstName, u.LastName, u.Gender = d.Name, d.Surname, d.Gender
			u.Position, u.Department = d.Position, d.Department
		}
	case KindPrivateClient:
		if d := rec.PrivateClient; d != nil {
			u.PrimaryAccountNumber = d.PrimaryAccountNumber
			u.FirstName, u.LastName, u.Gender = d.Name, d.Surname, d.Gender
		}
	case KindCorporateClient:
		if d := rec.CorporateClient; d != nil {
			u.PrimaryAccountNumber = d.PrimaryAccountNumber
			u.FirstName = d.Name
			u.TaxIDNumber, u.RegistrationNumber = d.TaxIDNumber, d.RegistrationNumber
		}
	}

	return u
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
