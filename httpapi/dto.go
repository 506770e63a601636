package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-iam"
)

// UserPayload is the update body shared by the employee and client routes.
// The route decides which variant the payload describes.
type UserPayload struct {
	ID          uuid.UUID            `json:"id"`
	Email       string               `json:"email"`
	Username    string               `json:"username"`
	Role        iam.RoleType         `json:"role"`
	Permissions []iam.PermissionType `json:"permissions"`
	Phone       string               `json:"phone"`
	Address     string               `json:"address"`
	DateOfBirth *time.Time           `json:"dateOfBirth"`

	Name       string `json:"name"`
	Surname    string `json:"surname"`
	Gender     string `json:"gender"`
	Position   string `json:"position"`
	Department string `json:"department"`

	PrimaryAccountNumber string `json:"primaryAccountNumber"`
	TaxIDNumber          string `json:"taxIdNumber"`
	RegistrationNumber   string `json:"registrationNumber"`
}

// Record builds the tagged variant for kind
func (p UserPayload) Record(kind iam.UserKind) *iam.UserRecord {
	rec := &iam.UserRecord{
		ID:          p.ID,
		Kind:        kind,
		Email:       p.Email,
		Username:    p.Username,
		Role:        p.Role,
		Permissions: p.Permissions,
		Phone:       p.Phone,
		Address:     p.Address,
		DateOfBirth: p.DateOfBirth,
	}

	switch kind {
	case iam.KindEmployee:
		rec.Employee = &iam.EmployeeDetails{
			Name:       p.Name,
			Surname:    p.Surname,
			Gender:     p.Gender,
			Position:   p.Position,
			Department: p.Department,
		}
	case iam.KindPrivateClient:
		rec.PrivateClient = &iam.PrivateClientDetails{
			PrimaryAccountNumber: p.PrimaryAccountNumber,
			Name:                 p.Name,
			Surname:              p.Surname,
			Gender:               p.Gender,
		}
	case iam.KindCorporateClient:
		rec.CorporateClient = &iam.CorporateClientDetails{
			PrimaryAccountNumber: p.PrimaryAccountNumber,
			Name:                 p.Name,
			TaxIDNumber:          p.TaxIDNumber,
			RegistrationNumber:   p.RegistrationNumber,
		}
	}

	return rec
}

// PasswordSubmitPayload is the body of the reset submission
type PasswordSubmitPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordResetRequestedResponse acknowledges a reset request. The token and
// its link only ever travel through the notifier, and unknown emails get the
// same answer as registered ones.
type PasswordResetRequestedResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ClientActivationPayload carries the first password of a registered client
type ClientActivationPayload struct {
	Password string `json:"password"`
}
