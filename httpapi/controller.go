package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/goliatone/go-iam"
	"github.com/goliatone/go-iam/middleware/jwtware"
)

// TextCodeInvalidRequest marks a body or path parameter that failed validation
const TextCodeInvalidRequest = "INVALID_REQUEST"

// UserDirectory is the user store the controller reads and writes profiles through
type UserDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*iam.UserRecord, error)
	FindAll(ctx context.Context) ([]*iam.UserRecord, error)
	UpdateProfile(ctx context.Context, rec *iam.UserRecord) (*iam.UserRecord, error)
	DeleteByEmail(ctx context.Context, email string) (*iam.UserRecord, error)
}

type UserControllerRoutes struct {
	Users string
	Roles string
}

type UserController struct {
	Logger       iam.Logger
	Service      *iam.Service
	Directory    UserDirectory
	Routes       *UserControllerRoutes
	ThrottleRate string
}

type UserControllerOption func(*UserController) *UserController

func WithControllerLogger(logger iam.Logger) UserControllerOption {
	return func(uc *UserController) *UserController {
		if logger != nil {
			uc.Logger = logger
		}
		return uc
	}
}

func WithThrottleRate(rate string) UserControllerOption {
	return func(uc *UserController) *UserController {
		uc.ThrottleRate = rate
		return uc
	}
}

func WithRoutes(routes *UserControllerRoutes) UserControllerOption {
	return func(uc *UserController) *UserController {
		if routes != nil {
			uc.Routes = routes
		}
		return uc
	}
}

func NewUserController(svc *iam.Service, dir UserDirectory, opts ...UserControllerOption) *UserController {
	uc := &UserController{
		Logger:       iam.NewZapLogger(nil),
		Service:      svc,
		Directory:    dir,
		ThrottleRate: defaultThrottleRate,
		Routes: &UserControllerRoutes{
			Users: "/api/users",
			Roles: "/api/roles",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			uc = opt(uc)
		}
	}

	return uc
}

// RegisterUserRoutes mounts the user and role endpoints on app
func RegisterUserRoutes(app fiber.Router, uc *UserController) error {
	throttle, err := Throttle(uc.ThrottleRate, uc.Logger)
	if err != nil {
		return err
	}

	decoder := uc.Service.Decoder()
	authenticated := jwtware.New(jwtware.Config{Decoder: decoder})
	staff := jwtware.New(jwtware.Config{
		Decoder:      decoder,
		AllowedRoles: []iam.RoleType{iam.RoleAdmin, iam.RoleEmployee},
	})
	admin := jwtware.New(jwtware.Config{
		Decoder:      decoder,
		AllowedRoles: []iam.RoleType{iam.RoleAdmin},
	})
	optional := jwtware.New(jwtware.Config{Decoder: decoder, Optional: true})

	users := app.Group(uc.Routes.Users)

	users.Post("/", admin, uc.CreateEmployee)
	users.Post("/public/private-client", throttle, uc.registerClient(iam.KindPrivateClient))
	users.Post("/public/corporate-client", throttle, uc.registerClient(iam.KindCorporateClient))
	users.Patch("/public/:clientId/activate", throttle, uc.ActivateClient)

	users.Post("/changePassword/:email", throttle, uc.ChangePassword)
	users.Put("/changePasswordSubmit/:token", throttle, optional, uc.ChangePasswordSubmit)

	users.Get("/findByEmail/:email", authenticated, uc.FindByEmail)
	users.Get("/findById/:id", authenticated, uc.FindByID)
	users.Get("/findAll", staff, uc.FindAll)
	users.Delete("/delete/:email", authenticated, uc.Delete)

	users.Put("/updateEmployee", staff, uc.update(iam.KindEmployee))
	users.Put("/updatePrivateClient", authenticated, uc.update(iam.KindPrivateClient))
	users.Put("/updateCorporateClient", authenticated, uc.update(iam.KindCorporateClient))

	users.Put("/activateEmployee/:id", authenticated, uc.setEmployeeActive(true))
	users.Put("/deactivateEmployee/:id", authenticated, uc.setEmployeeActive(false))

	app.Get(uc.Routes.Roles+"/all", staff, uc.AllRoles)

	return nil
}

// NewApp returns a fiber app with the JSON error handler installed
func NewApp(logger iam.Logger, cfg ...fiber.Config) *fiber.App {
	c := fiber.Config{}
	if len(cfg) > 0 {
		c = cfg[0]
	}
	c.ErrorHandler = ErrorHandler(logger)
	return fiber.New(c)
}

func (uc *UserController) ChangePassword(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Params("email"))
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return badRequest(err, "email")
	}

	baseURL := c.BaseURL() + uc.Routes.Users + "/changePasswordSubmit/"

	token, err := uc.Service.InitiatePasswordReset(c.UserContext(), email, baseURL)
	switch {
	case err == nil:
		return c.Status(fiber.StatusCreated).JSON(PasswordResetRequestedResponse{
			Email:     token.BoundEmail,
			ExpiresAt: token.ExpiresAt.UTC(),
		})
	case iam.IsUserNotFound(err):
		uc.Logger.Debug("password reset requested for unknown email %s", email)
		return c.Status(fiber.StatusCreated).JSON(PasswordResetRequestedResponse{
			Email:     strings.ToLower(email),
			ExpiresAt: time.Now().Add(uc.Service.ResetTokenTTL()).UTC(),
		})
	}

	return err
}

func (uc *UserController) ChangePasswordSubmit(c *fiber.Ctx) error {
	payload := PasswordSubmitPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(err, "body")
	}
	if err := payload.Validate(); err != nil {
		return badRequest(err, "body")
	}

	// a signed in caller may only reset their own password
	if claims, ok := jwtware.ClaimsFromCtx(c); ok && !claims.IsSelf(payload.Email) {
		return iam.ErrForbidden
	}

	if err := uc.Service.SubmitPasswordReset(c.UserContext(), c.Params("token"), payload.Email, payload.Password); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}

func (uc *UserController) FindByEmail(c *fiber.Ctx) error {
	claims, _ := jwtware.ClaimsFromCtx(c)

	rec, err := uc.Service.AuthorizeEmail(c.UserContext(), claims, c.Params("email"), iam.OpRead, nil)
	if err != nil {
		return err
	}

	return c.JSON(rec)
}

func (uc *UserController) FindByID(c *fiber.Ctx) error {
	claims, _ := jwtware.ClaimsFromCtx(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(err, "id")
	}

	rec, err := uc.Directory.FindByID(c.UserContext(), id)
	if err != nil {
		if iam.IsUserNotFound(err) && iam.HidesMissingUsers(claims) && !isSubject(claims, id) {
			return iam.ErrForbidden
		}
		return err
	}

	if err := uc.Service.Authorize(claims, rec, iam.OpRead, nil).Err(); err != nil {
		return err
	}

	return c.JSON(rec)
}

func (uc *UserController) FindAll(c *fiber.Ctx) error {
	records, err := uc.Directory.FindAll(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(records)
}

func (uc *UserController) Delete(c *fiber.Ctx) error {
	claims, _ := jwtware.ClaimsFromCtx(c)

	target, err := uc.Service.AuthorizeEmail(c.UserContext(), claims, c.Params("email"), iam.OpDelete, nil)
	if err != nil {
		return err
	}

	deleted, err := uc.Directory.DeleteByEmail(c.UserContext(), target.Email)
	if err != nil {
		return err
	}

	return c.JSON(deleted)
}

func (uc *UserController) update(kind iam.UserKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, _ := jwtware.ClaimsFromCtx(c)

		payload := UserPayload{}
		if err := c.BodyParser(&payload); err != nil {
			return badRequest(err, "body")
		}
		if err := payload.Validate(); err != nil {
			return badRequest(err, "body")
		}

		submitted := payload.Record(kind)

		if _, err := uc.Service.AuthorizeEmail(c.UserContext(), claims, submitted.Email, iam.OpUpdate, submitted); err != nil {
			return err
		}

		updated, err := uc.Directory.UpdateProfile(c.UserContext(), submitted)
		if err != nil {
			return err
		}

		return c.JSON(updated)
	}
}

// setEmployeeActive answers with a bare boolean. Auth failures keep their
// status, everything else is a 500 with false.
func (uc *UserController) setEmployeeActive(active bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, _ := jwtware.ClaimsFromCtx(c)

		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(false)
		}

		if active {
			err = uc.Service.ActivateEmployee(c.UserContext(), claims, id)
		} else {
			err = uc.Service.DeactivateEmployee(c.UserContext(), claims, id)
		}

		switch {
		case err == nil:
			return c.JSON(true)
		case errors.Is(err, iam.ErrUnauthorized):
			return c.Status(fiber.StatusUnauthorized).JSON(false)
		case errors.Is(err, iam.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(false)
		}

		uc.Logger.Warn("employee %s status change to active=%t failed: %v", id, active, err)
		return c.Status(fiber.StatusInternalServerError).JSON(false)
	}
}

// CreateEmployee answers with the new employee id
func (uc *UserController) CreateEmployee(c *fiber.Ctx) error {
	claims, _ := jwtware.ClaimsFromCtx(c)

	payload := UserPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(err, "body")
	}
	if err := payload.ValidateEmployee(); err != nil {
		return badRequest(err, "body")
	}

	rec := payload.Record(iam.KindEmployee)
	rec.ID = uuid.Nil

	created, err := uc.Service.CreateEmployee(c.UserContext(), claims, *rec)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(created.ID)
}

func (uc *UserController) registerClient(kind iam.UserKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := UserPayload{}
		if err := c.BodyParser(&payload); err != nil {
			return badRequest(err, "body")
		}
		if err := payload.ValidateRegistration(kind); err != nil {
			return badRequest(err, "body")
		}

		rec := payload.Record(kind)
		rec.ID = uuid.Nil

		created, err := uc.Service.RegisterClient(c.UserContext(), kind, *rec)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(created)
	}
}

// ActivateClient sets the first password of a registered client and
// answers with the client id
func (uc *UserController) ActivateClient(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("clientId"))
	if err != nil {
		return badRequest(err, "clientId")
	}

	payload := ClientActivationPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(err, "body")
	}
	if err := validation.Validate(payload.Password, validation.Required); err != nil {
		return badRequest(err, "password")
	}

	activated, err := uc.Service.ActivateClient(c.UserContext(), id, payload.Password)
	if err != nil {
		return err
	}

	return c.JSON(activated.ID)
}

func (uc *UserController) AllRoles(c *fiber.Ctx) error {
	return c.JSON(iam.Roles)
}

func (p PasswordSubmitPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

func (p UserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&p.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.Role, validation.Required, validation.By(validRole)),
		validation.Field(&p.Phone, validation.Length(0, 32), validation.By(validPhone)),
	)
}

func (p UserPayload) ValidateEmployee() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&p.Username, validation.Length(0, 100)),
		validation.Field(&p.Role, validation.In(iam.RoleAdmin, iam.RoleEmployee)),
		validation.Field(&p.Phone, validation.Length(0, 32), validation.By(validPhone)),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.Surname, validation.Required, validation.Length(1, 100)),
	)
}

// ValidateRegistration checks a client self registration body. Corporate
// clients also need their tax and registration numbers.
func (p UserPayload) ValidateRegistration(kind iam.UserKind) error {
	rules := []*validation.FieldRules{
		validation.Field(&p.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&p.Username, validation.Length(0, 100)),
		validation.Field(&p.Role, validation.In(iam.RoleUser)),
		validation.Field(&p.Phone, validation.Length(0, 32), validation.By(validPhone)),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.PrimaryAccountNumber, validation.Required, validation.Length(1, 64)),
	}

	if kind == iam.KindCorporateClient {
		rules = append(rules,
			validation.Field(&p.TaxIDNumber, validation.Required),
			validation.Field(&p.RegistrationNumber, validation.Required),
		)
	}

	return validation.ValidateStruct(&p, rules...)
}

func isSubject(claims *iam.Claims, id uuid.UUID) bool {
	return claims != nil && claims.SubjectID == id.String()
}

// DefaultPhoneRegion is used for numbers written without a country prefix
var DefaultPhoneRegion = "RS"

func validPhone(value any) error {
	phone, _ := value.(string)
	if strings.TrimSpace(phone) == "" {
		return nil
	}
	num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return errors.New("invalid phone number")
	}
	return nil
}

func validRole(value any) error {
	role, _ := value.(iam.RoleType)
	if !role.IsValid() {
		return errors.New("unknown role")
	}
	return nil
}

func badRequest(err error, field string) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request").
		WithTextCode(TextCodeInvalidRequest).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"field": field})
}
