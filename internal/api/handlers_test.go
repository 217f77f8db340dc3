package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcrm/internal/auth"
	"leadcrm/internal/config"
	"leadcrm/internal/leads"
	"leadcrm/internal/model"
	"leadcrm/internal/query"
	"leadcrm/internal/storage"
)

type fakeStore struct {
	total    int
	rows     []model.Lead
	leads    map[uuid.UUID]model.Lead
	taken    bool
	countErr error
}

func (f *fakeStore) CountLeads(p query.Predicate) (int, error) { return f.total, f.countErr }
func (f *fakeStore) SelectLeads(p query.Predicate, limit, offset int) ([]model.Lead, error) {
	return f.rows, nil
}
func (f *fakeStore) CreateLead(l *model.Lead) error { return nil }
func (f *fakeStore) GetLead(id, userID uuid.UUID) (model.Lead, error) {
	l, ok := f.leads[id]
	if !ok || l.UserID != userID {
		return model.Lead{}, storage.ErrNotFound
	}
	return l, nil
}
func (f *fakeStore) UpdateLead(l *model.Lead) error          { return nil }
func (f *fakeStore) DeleteLead(id, userID uuid.UUID) error   { return storage.ErrNotFound }
func (f *fakeStore) LeadEmailTaken(userID uuid.UUID, email string, exclude uuid.UUID) (bool, error) {
	return f.taken, nil
}

type fakeUsers struct {
	users   map[string]model.User
	err     error
	deleted []uuid.UUID
}

func (f *fakeUsers) CreateUser(u *model.User) error { return f.err }
func (f *fakeUsers) GetUserByEmail(email string) (model.User, error) {
	if f.err != nil {
		return model.User{}, f.err
	}
	u, ok := f.users[email]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return u, nil
}
func (f *fakeUsers) DeleteUser(id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func testAPI(t *testing.T, st *fakeStore) (http.Handler, *http.Cookie) {
	t.Helper()
	return testAPIWithUsers(t, st, &fakeUsers{})
}

func testAPIWithUsers(t *testing.T, st *fakeStore, users *fakeUsers) (http.Handler, *http.Cookie) {
	t.Helper()
	auth.SetSecret("handler-test-secret")

	cfg := &config.Config{}
	a := NewAPI(leads.NewService(st, nil), users, nil, cfg)

	token, err := auth.GenerateToken(uuid.New().String())
	require.NoError(t, err)
	return a.Router(), &http.Cookie{Name: auth.SessionCookie, Value: token}
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLeadsRequireSession(t *testing.T) {
	h, _ := testAPI(t, &fakeStore{})

	rec := do(h, httptest.NewRequest(http.MethodGet, "/leads", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListLeadsEnvelope(t *testing.T) {
	st := &fakeStore{total: 25, rows: make([]model.Lead, 10)}
	h, cookie := testAPI(t, st)

	filters := url.QueryEscape(`{"source":{"operator":"equals","value":"website"}}`)
	req := httptest.NewRequest(http.MethodGet, "/leads?page=2&limit=10&filters="+filters, nil)
	req.AddCookie(cookie)
	rec := do(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env leads.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 2, env.Page)
	assert.Equal(t, 10, env.Limit)
	assert.Equal(t, 25, env.Total)
	assert.Equal(t, 3, env.TotalPages)
	assert.Len(t, env.Data, 10)
}

func TestListLeadsInvalidFilters(t *testing.T) {
	h, cookie := testAPI(t, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/leads?filters="+url.QueryEscape(`{"source":`), nil)
	req.AddCookie(cookie)
	rec := do(h, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_filters")
}

func TestListLeadsPageBounds(t *testing.T) {
	h, cookie := testAPI(t, &fakeStore{})

	for _, target := range []string{
		"/leads?page=0",
		"/leads?page=abc",
		"/leads?limit=0",
		"/leads?limit=101",
		"/leads?page=2147483648",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.AddCookie(cookie)
		rec := do(h, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestListLeadsStoreErrorIsOpaque(t *testing.T) {
	st := &fakeStore{countErr: errors.New("pq: connection refused")}
	h, cookie := testAPI(t, st)

	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	req.AddCookie(cookie)
	rec := do(h, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func loginReq(email, password string) *http.Request {
	body := `{"email":"` + email + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginUnknownEmailUnauthorized(t *testing.T) {
	h, _ := testAPIWithUsers(t, &fakeStore{}, &fakeUsers{})

	rec := do(h, loginReq("nobody@acme.com", "whatever1"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_credentials")
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	hash, err := auth.HashPassword("right-password")
	require.NoError(t, err)
	users := &fakeUsers{users: map[string]model.User{
		"ana@acme.com": {ID: uuid.New(), Email: "ana@acme.com", PasswordHash: hash},
	}}
	h, _ := testAPIWithUsers(t, &fakeStore{}, users)

	rec := do(h, loginReq("ana@acme.com", "wrong-password"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginStoreErrorIsOpaque(t *testing.T) {
	users := &fakeUsers{err: errors.New("pq: connection refused")}
	h, _ := testAPIWithUsers(t, &fakeStore{}, users)

	rec := do(h, loginReq("ana@acme.com", "right-password"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestDeleteAccount(t *testing.T) {
	users := &fakeUsers{}
	h, cookie := testAPIWithUsers(t, &fakeStore{}, users)

	req := httptest.NewRequest(http.MethodDelete, "/auth/me", nil)
	req.AddCookie(cookie)
	rec := do(h, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, users.deleted, 1)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookie, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestDeleteAccountGone(t *testing.T) {
	users := &fakeUsers{err: storage.ErrNotFound}
	h, cookie := testAPIWithUsers(t, &fakeStore{}, users)

	req := httptest.NewRequest(http.MethodDelete, "/auth/me", nil)
	req.AddCookie(cookie)
	rec := do(h, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateLead(t *testing.T) {
	h, cookie := testAPI(t, &fakeStore{})

	body := `{"first_name":"Ana","last_name":"Souza","email":"ana@acme.com","source":"website"}`
	req := httptest.NewRequest(http.MethodPost, "/leads", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := do(h, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var l model.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &l))
	assert.Equal(t, "ana@acme.com", l.Email)
	assert.Equal(t, model.StatusNew, l.Status)
}

func TestCreateLeadValidationError(t *testing.T) {
	h, cookie := testAPI(t, &fakeStore{})

	body := `{"first_name":"","last_name":"Souza","email":"ana@acme.com","source":"website"}`
	req := httptest.NewRequest(http.MethodPost, "/leads", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := do(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestCreateLeadDuplicateConflict(t *testing.T) {
	h, cookie := testAPI(t, &fakeStore{taken: true})

	body := `{"first_name":"Ana","last_name":"Souza","email":"ana@acme.com","source":"website"}`
	req := httptest.NewRequest(http.MethodPost, "/leads", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := do(h, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate_email")
}

func TestGetLeadNotFound(t *testing.T) {
	h, cookie := testAPI(t, &fakeStore{leads: map[uuid.UUID]model.Lead{}})

	req := httptest.NewRequest(http.MethodGet, "/leads/"+uuid.New().String(), nil)
	req.AddCookie(cookie)
	rec := do(h, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLeadBadID(t *testing.T) {
	h, cookie := testAPI(t, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/leads/not-a-uuid", nil)
	req.AddCookie(cookie)
	rec := do(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteForeignLeadNotFound(t *testing.T) {
	h, cookie := testAPI(t, &fakeStore{})

	req := httptest.NewRequest(http.MethodDelete, "/leads/"+uuid.New().String(), nil)
	req.AddCookie(cookie)
	rec := do(h, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	h, _ := testAPI(t, &fakeStore{})

	rec := do(h, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookie, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
