package identity

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// Controller is the JSON boundary of the service. Handlers return rich
// errors; ErrorHandler turns them into a deterministic {status, body}
// pair.
type Controller struct {
	Debug     bool
	Logger    Logger
	Auther    Authenticator
	Lifecycle *LifecycleManager
	Guard     *AccessGuard
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(l Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// NewController creates the HTTP controller
func NewController(auther Authenticator, lifecycle *LifecycleManager, guard *AccessGuard, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:    defLogger{},
		Auther:    auther,
		Lifecycle: lifecycle,
		Guard:     guard,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Authenticator in identity controller...")
	}

	if c.Lifecycle == nil {
		panic("Missing LifecycleManager in identity controller...")
	}

	if c.Guard == nil {
		panic("Missing AccessGuard in identity controller...")
	}

	return c
}

// RegisterRoutes mounts the HTTP surface on the given router
func (a *Controller) RegisterRoutes(app fiber.Router) {
	app.Post("/auth/register", a.RegisterPost)
	app.Post("/auth/login", a.LoginPost)

	app.Get("/users", a.Guard.Protected(RoleAdmin), a.UsersIndex)
	app.Get("/me", a.Guard.Protected(), a.ProfileShow)
	app.Patch("/users/:id", a.Guard.Protected(), a.UserUpdate)
	app.Delete("/users/:id", a.Guard.Protected(RoleAdmin), a.UserDelete)
}

// RegisterPayload is the registration request body
type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(&r.Role, validation.Required),
	)
}

func (a *Controller) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterPayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return errors.Wrap(err, errors.CategoryBadInput, "failed to parse request body").
			WithCode(errors.CodeBadRequest)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload", "error", err)
		return validationError(err)
	}

	if a.Debug {
		a.Logger.Debug("register payload", "payload", print.MaybePrettyJSON(payload))
	}

	user, err := a.Auther.Register(c.Context(), RegisterUserMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
		Role:     payload.Role,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(user.Public())
}

// LoginPayload is the login request body
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginResponse is the login success body
type LoginResponse struct {
	Token string      `json:"token"`
	User  *PublicUser `json:"user"`
}

func (a *Controller) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginPayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return errors.Wrap(err, errors.CategoryBadInput, "failed to parse request body").
			WithCode(errors.CodeBadRequest)
	}

	if err := payload.Validate(); err != nil {
		// a malformed login is still just a failed authentication to
		// the caller
		return ErrInvalidCredentials
	}

	token, user, err := a.Auther.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return err
	}

	return c.JSON(LoginResponse{
		Token: token,
		User:  user.Public(),
	})
}

func (a *Controller) UsersIndex(c *fiber.Ctx) error {
	records, err := a.Lifecycle.ListUsers(c.UserContext())
	if err != nil {
		return err
	}

	return c.JSON(PublicUsers(records))
}

func (a *Controller) ProfileShow(c *fiber.Ctx) error {
	user, ok := UserFromFiber(c, a.Guard.ContextKey())
	if !ok {
		return ErrUnauthenticated
	}

	return c.JSON(user.Public())
}

// UpdateUserPayload is the partial update request body
type UpdateUserPayload struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// Validate will run validation rules
func (r UpdateUserPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.NilOrNotEmpty, validation.Length(6, 100), is.Email),
	)
}

func (a *Controller) UserUpdate(c *fiber.Ctx) error {
	acting, ok := UserFromFiber(c, a.Guard.ContextKey())
	if !ok {
		return ErrUnauthenticated
	}

	targetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrUserNotFound
	}

	payload := new(UpdateUserPayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("update user parse payload", "error", err)
		return errors.Wrap(err, errors.CategoryBadInput, "failed to parse request body").
			WithCode(errors.CodeBadRequest)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("update user validate payload", "error", err)
		return validationError(err)
	}

	user, err := a.Lifecycle.UpdateUser(c.UserContext(), acting, targetID, UserUpdate{
		Name:  payload.Name,
		Email: payload.Email,
	})
	if err != nil {
		return err
	}

	return c.JSON(user.Public())
}

// DeleteResponse confirms a deletion
type DeleteResponse struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

func (a *Controller) UserDelete(c *fiber.Ctx) error {
	acting, ok := UserFromFiber(c, a.Guard.ContextKey())
	if !ok {
		return ErrUnauthenticated
	}

	targetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrUserNotFound
	}

	if err := a.Lifecycle.DeleteUser(c.UserContext(), acting, targetID); err != nil {
		return err
	}

	return c.JSON(DeleteResponse{
		Deleted: true,
		ID:      targetID.String(),
	})
}

// ErrorBody is the structured error payload every failure returns
type ErrorBody struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse wraps the error body
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorHandler maps every error to a deterministic status and payload.
// Internal details are logged, never sent to the caller.
func (a *Controller) ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: ErrorBody{Message: fiberErr.Message},
		})
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = statusFromCategory(richErr.Category)
	}

	body := ErrorBody{
		Message: richErr.Message,
		Code:    richErr.TextCode,
	}

	if fields, ok := richErr.Metadata["fields"].(map[string]string); ok {
		body.Fields = fields
	}

	if richErr.Category == errors.CategoryInternal {
		a.Logger.Error("internal error at HTTP boundary",
			"error", err,
			"path", c.Path(),
			"method", c.Method(),
		)
		body = ErrorBody{Message: "An unexpected server error occurred"}
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(ErrorResponse{Error: body})
}

func statusFromCategory(category errors.Category) int {
	switch category {
	case errors.CategoryAuth, errors.CategoryRateLimit:
		return fiber.StatusUnauthorized
	case errors.CategoryAuthz:
		return fiber.StatusForbidden
	case errors.CategoryNotFound:
		return fiber.StatusNotFound
	case errors.CategoryConflict, errors.CategoryValidation, errors.CategoryBadInput:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// validationError converts ozzo validation output into a rich 400 with a
// per-field breakdown
func validationError(err error) error {
	return errors.New("validation failed", errors.CategoryValidation).
		WithCode(errors.CodeBadRequest).
		WithTextCode("VALIDATION").
		WithMetadata(map[string]any{
			"fields": FormatValidationErrorToMap(err),
		})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	verrs, ok := err.(validation.Errors)
	if !ok {
		out["error"] = err.Error()
		return out
	}

	for field, ferr := range verrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}

	return out
}
