package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "leadcrm/docs"
	"leadcrm/internal/auth"
	"leadcrm/internal/metrics"
	"leadcrm/internal/model"
	"leadcrm/internal/query"
	"leadcrm/internal/storage"
)

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	// Public
	r.Post("/auth/register", a.Register)
	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Secured
	r.Group(func(r chi.Router) {
		r.Use(auth.CookieAuthMiddleware)

		r.Get("/auth/me", a.Me)
		r.Delete("/auth/me", a.DeleteAccount)
		r.Post("/leads", a.CreateLead)
		r.Get("/leads", a.ListLeads)
		r.Get("/leads/{id}", a.GetLead)
		r.Put("/leads/{id}", a.UpdateLead)
		r.Delete("/leads/{id}", a.DeleteLead)
	})

	return r
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// @Summary Register a user
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body credentials true "Email and password"
// @Success 201 {object} map[string]string
// @Router /auth/register [post]
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !readJSON(w, r, &body) {
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	u := &model.User{ID: uuid.New(), Email: body.Email, PasswordHash: hash}
	if err := a.Users.CreateUser(u); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "duplicate_email", "an account with this email already exists")
			return
		}
		serviceError(w, err)
		return
	}

	if a.Activity != nil {
		if err := a.Activity.EnsureTenant(u.ID); err != nil {
			log.Printf("API: failed to start activity consumer for %s: %v", u.ID, err)
		}
	}

	log.Printf("API: Registered user %s", u.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": u.ID.String(), "email": u.Email})
}

// @Summary Log in and receive a session cookie
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body credentials true "Email and password"
// @Success 200 {object} map[string]string
// @Router /auth/login [post]
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !readJSON(w, r, &body) {
		return
	}

	u, err := a.Users.GetUserByEmail(body.Email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		serviceError(w, err)
		return
	}
	if err != nil || !auth.CheckPassword(u.PasswordHash, body.Password) {
		// Same answer whether the account exists or the password is wrong.
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
		return
	}

	token, err := auth.GenerateToken(u.ID.String())
	if err != nil {
		serviceError(w, err)
		return
	}

	maxAge := a.Cfg.Auth.TokenTTLHours * 3600
	if maxAge <= 0 {
		maxAge = 24 * 3600
	}
	http.SetCookie(w, auth.SessionCookieFor(token, maxAge, a.Cfg.Auth.SecureCookies))
	writeJSON(w, http.StatusOK, map[string]string{"user_id": u.ID.String()})
}

// @Summary Log out and clear the session cookie
// @Tags Auth
// @Success 204
// @Router /auth/logout [post]
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.SessionCookieFor("", -1, a.Cfg.Auth.SecureCookies))
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Current user identity
// @Tags Auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/me [get]
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"user_id": auth.GetUserID(r)})
}

// @Summary Delete the account, its leads and its activity queue
// @Tags Auth
// @Success 204
// @Router /auth/me [delete]
func (a *API) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := a.Users.DeleteUser(uid); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "account not found")
			return
		}
		serviceError(w, err)
		return
	}

	if a.Activity != nil {
		if err := a.Activity.RemoveTenant(uid); err != nil {
			log.Printf("API: failed to remove activity consumer for %s: %v", uid, err)
		}
	}

	log.Printf("API: Deleted user %s", uid)
	http.SetCookie(w, auth.SessionCookieFor("", -1, a.Cfg.Auth.SecureCookies))
	w.WriteHeader(http.StatusNoContent)
}

// userID pulls the authenticated tenant identity injected by the middleware.
func userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(auth.GetUserID(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return uuid.Nil, false
	}
	return id, true
}

func leadID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid lead id")
		return uuid.Nil, false
	}
	return id, true
}

// @Summary Create a lead
// @Tags Leads
// @Accept json
// @Produce json
// @Param body body model.Lead true "Lead fields"
// @Success 201 {object} model.Lead
// @Router /leads [post]
func (a *API) CreateLead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var body model.Lead
	if !readJSON(w, r, &body) {
		return
	}

	created, err := a.Leads.Create(uid, body)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// @Summary List leads with filtering and pagination
// @Tags Leads
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Page size 1-100 (default 20)"
// @Param filters query string false "JSON filter document"
// @Success 200 {object} leads.Envelope
// @Router /leads [get]
func (a *API) ListLeads(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	page, ok := intParam(w, r, "page", 1, query.MaxPage)
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", 1, query.MaxLimit)
	if !ok {
		return
	}

	var filters query.Filters
	if raw := r.URL.Query().Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filters", "filters must be a JSON object of {operator, value} pairs")
			return
		}
	}

	env, err := a.Leads.List(uid, filters, query.NewPage(page, limit))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// @Summary Fetch a lead
// @Tags Leads
// @Produce json
// @Param id path string true "Lead UUID"
// @Success 200 {object} model.Lead
// @Router /leads/{id} [get]
func (a *API) GetLead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	l, err := a.Leads.Get(uid, id)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// @Summary Update a lead
// @Tags Leads
// @Accept json
// @Produce json
// @Param id path string true "Lead UUID"
// @Param body body model.Lead true "Lead fields"
// @Success 200 {object} model.Lead
// @Router /leads/{id} [put]
func (a *API) UpdateLead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	var body model.Lead
	if !readJSON(w, r, &body) {
		return
	}

	updated, err := a.Leads.Update(uid, id, body)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// @Summary Delete a lead
// @Tags Leads
// @Param id path string true "Lead UUID"
// @Success 204
// @Router /leads/{id} [delete]
func (a *API) DeleteLead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	if err := a.Leads.Delete(uid, id); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// intParam parses an optional positive integer query parameter. max == 0
// means unbounded. Returns 0 when the parameter is absent.
func intParam(w http.ResponseWriter, r *http.Request, name string, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || (max > 0 && n > max) {
		writeError(w, http.StatusBadRequest, "validation_error", name+" is out of range")
		return 0, false
	}
	return n, true
}
