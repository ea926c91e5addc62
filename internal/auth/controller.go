// Package auth ties credential checks, the user store and the session
// cookie together into the sign-in, registration and sign-out flows, plus
// the guard placed in front of pages that need a signed-in user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kudos-web/internal/credentials"
	"kudos-web/internal/domain"
	"kudos-web/internal/i18n"
	"kudos-web/internal/service"
	"kudos-web/internal/session"
)

const (
	FormSignIn   = "sign-in"
	FormRegister = "register"

	HomePath   = "/"
	SignInPath = "/sign-in"

	// RedirectParam carries the page to return to after signing in.
	RedirectParam = "redirectTo"

	defaultRequestTimeout = 10 * time.Second
)

// Redirect is returned instead of a result when the request has to go
// somewhere else. Callers must stop handling the request and redirect.
type Redirect struct {
	Location string
}

func (r *Redirect) Error() string { return "redirect to " + r.Location }

// ValidationError is a rejected form submission, already translated. It
// marshals to the JSON body sent back with HTTP 400.
type ValidationError struct {
	Form    string            `json:"form"`
	Message string            `json:"error,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Form, e.Message)
	}
	return fmt.Sprintf("%s: %d invalid fields", e.Form, len(e.Errors))
}

// Credentials is a decoded sign-in or registration form.
type Credentials struct {
	Email       string
	Password    string
	DisplayName string
	RedirectTo  string
}

type Config struct {
	// RequestTimeout bounds store calls and password hashing per request.
	RequestTimeout time.Duration
}

type Controller struct {
	users      service.UserService
	sessions   *session.Manager
	translator *i18n.Translator
	log        logrus.FieldLogger
	timeout    time.Duration
}

func NewController(users service.UserService, sessions *session.Manager, translator *i18n.Translator, log logrus.FieldLogger, cfg Config) *Controller {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &Controller{
		users:      users,
		sessions:   sessions,
		translator: translator,
		log:        log,
		timeout:    cfg.RequestTimeout,
	}
}

// RequireAuthenticated returns the signed-in user id, or a *Redirect to the
// sign-in page that remembers the requested path.
func (c *Controller) RequireAuthenticated(r *http.Request) (string, error) {
	userID, ok := c.sessions.Read(r)
	if !ok {
		q := url.Values{RedirectParam: {r.URL.Path}}
		return "", &Redirect{Location: SignInPath + "?" + q.Encode()}
	}
	return userID, nil
}

// CurrentUser is RequireAuthenticated followed by loading the user. A
// session whose user cannot be loaded is destroyed.
func (c *Controller) CurrentUser(w http.ResponseWriter, r *http.Request) (*domain.User, error) {
	userID, err := c.RequireAuthenticated(r)
	if err != nil {
		return nil, err
	}
	return c.loadUser(w, r, userID)
}

// SignedInUser returns the session's user, or nil when nobody is signed in.
func (c *Controller) SignedInUser(w http.ResponseWriter, r *http.Request) (*domain.User, error) {
	userID, ok := c.sessions.Read(r)
	if !ok {
		return nil, nil
	}
	return c.loadUser(w, r, userID)
}

func (c *Controller) loadUser(w http.ResponseWriter, r *http.Request, userID string) (*domain.User, error) {
	ctx, cancel := c.withTimeout(r.Context())
	defer cancel()

	user, err := c.users.FindByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	c.log.WithError(err).WithField("user_id", userID).Warn("session user lookup failed, signing out")
	c.destroy(w, r)
	return nil, &Redirect{Location: SignInPath}
}

// SignIn checks the credentials and starts a session. It returns where to
// redirect, or a *ValidationError for the form.
func (c *Controller) SignIn(w http.ResponseWriter, r *http.Request, in Credentials) (string, error) {
	lng := c.Locale(r)
	if verr := c.validate(FormSignIn, lng, in); verr != nil {
		return "", verr
	}

	ctx, cancel := c.withTimeout(r.Context())
	defer cancel()

	user, err := c.users.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return "", &ValidationError{
				Form:    FormSignIn,
				Message: c.translator.T(lng, "BAD_REQUEST", nil),
				Fields:  echo(FormSignIn, in),
			}
		}
		return "", fmt.Errorf("sign in: %w", err)
	}

	c.log.WithField("user_id", user.ID).Debug("user signed in")
	return c.startSession(w, user.ID, in.RedirectTo)
}

// Register validates every field, creates the user and signs them in.
func (c *Controller) Register(w http.ResponseWriter, r *http.Request, in Credentials) (string, error) {
	lng := c.Locale(r)
	if verr := c.validate(FormRegister, lng, in); verr != nil {
		return "", verr
	}

	ctx, cancel := c.withTimeout(r.Context())
	defer cancel()

	taken, err := c.users.EmailRegistered(ctx, in.Email)
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	if taken {
		return "", c.emailTaken(lng, in)
	}

	user, err := c.users.Create(ctx, in.Email, in.Password, in.DisplayName)
	if err != nil {
		// a concurrent registration won the race past the pre-check
		if errors.Is(err, service.ErrAlreadyExists) {
			return "", c.emailTaken(lng, in)
		}
		return "", fmt.Errorf("register: %w", err)
	}

	c.log.WithField("user_id", user.ID).Info("user registered")
	return c.startSession(w, user.ID, in.RedirectTo)
}

// SignOut destroys the session and returns the sign-in page location.
func (c *Controller) SignOut(w http.ResponseWriter, r *http.Request) string {
	c.destroy(w, r)
	return SignInPath
}

// Locale is the language of the request.
func (c *Controller) Locale(r *http.Request) string {
	return c.translator.Resolver().Resolve(r)
}

func (c *Controller) startSession(w http.ResponseWriter, userID, redirectTo string) (string, error) {
	if err := c.sessions.Issue(w, userID); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return SafeRedirect(redirectTo), nil
}

// destroy always clears the cookie; a failing revocation store is only logged.
func (c *Controller) destroy(w http.ResponseWriter, r *http.Request) {
	if err := c.sessions.Destroy(w, r); err != nil {
		c.log.WithError(err).Warn("revoke session")
	}
}

func (c *Controller) validate(form, lng string, in Credentials) *ValidationError {
	checks := map[string]error{
		"email":    credentials.ValidateEmail(in.Email),
		"password": credentials.ValidatePassword(in.Password),
	}
	if form == FormRegister {
		checks["displayName"] = credentials.ValidateName(in.DisplayName)
	}

	messages := make(map[string]string)
	for field, err := range checks {
		var cerr *credentials.Error
		if errors.As(err, &cerr) {
			messages[field] = c.translator.T(lng, cerr.Key, cerr.Params)
		}
	}
	if len(messages) == 0 {
		return nil
	}
	return &ValidationError{Form: form, Errors: messages, Fields: echo(form, in)}
}

func (c *Controller) emailTaken(lng string, in Credentials) *ValidationError {
	return &ValidationError{
		Form:   FormRegister,
		Errors: map[string]string{"email": c.translator.T(lng, "USER_ALREADY_EXISTS", nil)},
		Fields: echo(FormRegister, in),
	}
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// echo returns the submitted values shown again on the form. The password
// is never sent back.
func echo(form string, in Credentials) map[string]string {
	fields := map[string]string{"email": in.Email}
	if form == FormRegister {
		fields["displayName"] = in.DisplayName
	}
	return fields
}

// SafeRedirect accepts only local absolute paths and maps everything else
// to the home page.
func SafeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return HomePath
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return HomePath
	}
	return target
}
