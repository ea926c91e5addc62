package http

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"

	"kudos-web/internal/auth"
	"kudos-web/internal/domain"
	"kudos-web/internal/i18n"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	localeKey = "lng"
	userKey   = "user"
)

// Handler wires HTTP routes to the auth flows and renders the pages.
type Handler struct {
	auth       *auth.Controller
	translator *i18n.Translator
	log        logrus.FieldLogger
	templates  *template.Template
}

func NewHandler(ctrl *auth.Controller, translator *i18n.Translator, log logrus.FieldLogger) (*Handler, error) {
	funcs := template.FuncMap{
		"t": func(lng, key string, params ...any) string {
			return translator.For(lng)(key, params...)
		},
	}
	tmpl, err := template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Handler{
		auth:       ctrl,
		translator: translator,
		log:        log,
		templates:  tmpl,
	}, nil
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(h.templates)
	router.Use(requestLogger(h.log), h.locale(), gin.CustomRecovery(h.recovered))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/", h.requireUser(), h.home)
	router.POST("/", h.homeAction)
	router.GET("/sign-in", h.signInPage)
	router.POST("/sign-in", h.submitSignIn)

	router.POST("/logout", h.signOut)
	router.POST("/actions/logout", h.signOut)
	router.GET("/logout", func(c *gin.Context) {
		c.Redirect(http.StatusFound, auth.HomePath)
	})

	router.NoRoute(h.notFound)
}

// authForm is the sign-in page submission. Pointer fields tell a missing
// field apart from an empty one; a missing field rejects the whole form.
type authForm struct {
	Action      string  `form:"_action" binding:"required,oneof=sign-in register"`
	Email       *string `form:"email" binding:"required"`
	Password    *string `form:"password" binding:"required"`
	DisplayName *string `form:"displayName" binding:"required_if=Action register"`
	RedirectTo  string  `form:"redirectTo"`
}

func (f authForm) credentials() auth.Credentials {
	in := auth.Credentials{
		Email:      *f.Email,
		Password:   *f.Password,
		RedirectTo: f.RedirectTo,
	}
	if f.DisplayName != nil {
		in.DisplayName = *f.DisplayName
	}
	return in
}

type signInPage struct {
	Lng        string
	Form       string
	Error      string
	Errors     map[string]string
	Fields     map[string]string
	RedirectTo string
}

type homePage struct {
	Lng  string
	User *domain.User
}

type errorPage struct {
	Lng     string
	Status  int
	Message string
}

func (h *Handler) home(c *gin.Context) {
	user := c.MustGet(userKey).(*domain.User)
	c.HTML(http.StatusOK, "home.tmpl", homePage{Lng: h.lng(c), User: user})
}

func (h *Handler) signInPage(c *gin.Context) {
	user, err := h.auth.SignedInUser(c.Writer, c.Request)
	if err != nil {
		h.fail(c, err)
		return
	}
	if user != nil {
		c.Redirect(http.StatusFound, auth.HomePath)
		return
	}

	form := auth.FormSignIn
	if c.Query("form") == auth.FormRegister {
		form = auth.FormRegister
	}
	c.HTML(http.StatusOK, "sign-in.tmpl", signInPage{
		Lng:        h.lng(c),
		Form:       form,
		RedirectTo: c.Query(auth.RedirectParam),
	})
}

func (h *Handler) submitSignIn(c *gin.Context) {
	var form authForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		h.log.WithError(err).Debug("malformed sign-in submission")
		action := auth.FormSignIn
		if form.Action == auth.FormRegister {
			action = auth.FormRegister
		}
		h.rejectForm(c, &auth.ValidationError{
			Form:    action,
			Message: h.translator.T(h.lng(c), "BAD_REQUEST", nil),
		}, form.RedirectTo)
		return
	}

	var (
		location string
		err      error
	)
	switch form.Action {
	case auth.FormRegister:
		location, err = h.auth.Register(c.Writer, c.Request, form.credentials())
	default:
		location, err = h.auth.SignIn(c.Writer, c.Request, form.credentials())
	}
	if err != nil {
		var verr *auth.ValidationError
		if errors.As(err, &verr) {
			h.rejectForm(c, verr, form.RedirectTo)
			return
		}
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, location)
}

// rejectForm answers 400 with the JSON payload or the re-rendered page,
// whichever the client accepts.
func (h *Handler) rejectForm(c *gin.Context, verr *auth.ValidationError, redirectTo string) {
	c.Negotiate(http.StatusBadRequest, gin.Negotiate{
		Offered:  []string{binding.MIMEHTML, binding.MIMEJSON},
		HTMLName: "sign-in.tmpl",
		HTMLData: signInPage{
			Lng:        h.lng(c),
			Form:       verr.Form,
			Error:      verr.Message,
			Errors:     verr.Errors,
			Fields:     verr.Fields,
			RedirectTo: redirectTo,
		},
		JSONData: verr,
	})
}

type homeForm struct {
	Action string `form:"_action" binding:"required,eq=logout"`
}

// homeAction handles forms posted to the home page; signing out is the
// only action it knows.
func (h *Handler) homeAction(c *gin.Context) {
	var form homeForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		lng := h.lng(c)
		c.Negotiate(http.StatusBadRequest, gin.Negotiate{
			Offered:  []string{binding.MIMEHTML, binding.MIMEJSON},
			HTMLName: "error.tmpl",
			HTMLData: errorPage{Lng: lng, Status: http.StatusBadRequest, Message: "BAD_REQUEST"},
			JSONData: gin.H{"error": h.translator.T(lng, "BAD_REQUEST", nil), "form": form.Action},
		})
		return
	}
	h.signOut(c)
}

func (h *Handler) signOut(c *gin.Context) {
	c.Redirect(http.StatusFound, h.auth.SignOut(c.Writer, c.Request))
}

func (h *Handler) notFound(c *gin.Context) {
	h.errorPage(c, http.StatusNotFound, "errors.NOT_FOUND")
}

func (h *Handler) recovered(c *gin.Context, rec any) {
	h.fail(c, fmt.Errorf("panic: %v", rec))
}

// fail redirects on *auth.Redirect and answers 500 otherwise.
func (h *Handler) fail(c *gin.Context, err error) {
	var redirect *auth.Redirect
	if errors.As(err, &redirect) {
		c.Redirect(http.StatusFound, redirect.Location)
		c.Abort()
		return
	}
	h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	h.errorPage(c, http.StatusInternalServerError, "errors.INTERNAL")
}

func (h *Handler) errorPage(c *gin.Context, status int, key string) {
	lng := h.lng(c)
	c.Negotiate(status, gin.Negotiate{
		Offered:  []string{binding.MIMEHTML, binding.MIMEJSON},
		HTMLName: "error.tmpl",
		HTMLData: errorPage{Lng: lng, Status: status, Message: key},
		JSONData: gin.H{"error": h.translator.T(lng, key, nil)},
	})
	c.Abort()
}

// requireUser loads the signed-in user or redirects to the sign-in page.
func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.auth.CurrentUser(c.Writer, c.Request)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func (h *Handler) locale() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(localeKey, h.auth.Locale(c.Request))
		c.Next()
	}
}

func (h *Handler) lng(c *gin.Context) string {
	if lng := c.GetString(localeKey); lng != "" {
		return lng
	}
	return h.translator.Fallback()
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}
