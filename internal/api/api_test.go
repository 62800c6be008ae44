package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/life-stream-dev/twidder/internal/database"
	"github.com/life-stream-dev/twidder/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type notification struct {
	account string
	action  protocol.ServerAction
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
	// store lets Notify observe what was persisted before it ran
	store     database.MessageStore
	persisted []int
}

func (n *recordingNotifier) Notify(accountID string, action protocol.ServerAction, _ any) bool {
	messages, _ := n.store.ListMessages(context.Background(), accountID)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{account: accountID, action: action})
	n.persisted = append(n.persisted, len(messages))
	return true
}

type testAPI struct {
	router   *gin.Engine
	store    *database.MemoryStore
	notifier *recordingNotifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := database.NewMemoryStore()
	notifier := &recordingNotifier{store: store}
	h := NewHandler(store, notifier)
	h.cost = bcrypt.MinCost
	return &testAPI{router: NewRouter(h, nil, false), store: store, notifier: notifier}
}

type response struct {
	Status  int
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	resp.Status = rec.Code
	return resp
}

func signUpBody(email string) map[string]any {
	return map[string]any{
		"email":      email,
		"password":   "secret",
		"firstname":  "Ada",
		"familyname": "Lovelace",
		"gender":     "female",
		"city":       "London",
		"country":    "UK",
	}
}

func (a *testAPI) signUpAndIn(t *testing.T, email string) string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/sign_up", "", signUpBody(email))
	require.Equal(t, http.StatusCreated, resp.Status, resp.Message)

	resp = a.do(t, http.MethodPost, "/sign_in", "", map[string]any{"username": email, "password": "secret"})
	require.Equal(t, http.StatusOK, resp.Status, resp.Message)
	var token string
	require.NoError(t, json.Unmarshal(resp.Data, &token))
	return token
}

func TestSignUpAndSignIn(t *testing.T) {
	a := newTestAPI(t)

	token := a.signUpAndIn(t, "ada@example.com")
	assert.Len(t, token, tokenLength)
	assert.Regexp(t, `^[A-Za-z0-9]+$`, token)

	resp := a.do(t, http.MethodPost, "/sign_up", "", signUpBody("ada@example.com"))
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.False(t, resp.Success)
	assert.Equal(t, "User already exists.", resp.Message)

	resp = a.do(t, http.MethodPost, "/sign_in", "", map[string]any{"username": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "Invalid credentials.", resp.Message)

	resp = a.do(t, http.MethodPost, "/sign_in", "", map[string]any{"username": "nobody@example.com", "password": "secret"})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	user, err := a.store.GetUser(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", user.PasswordHash)
}

func TestSignUpValidation(t *testing.T) {
	a := newTestAPI(t)
	cases := []struct {
		name    string
		mutate  func(body map[string]any)
		message string
	}{
		{"missing email", func(b map[string]any) { delete(b, "email") }, "Missing Email."},
		{"empty email", func(b map[string]any) { b["email"] = "" }, "Email is empty."},
		{"bad email", func(b map[string]any) { b["email"] = "not-an-email" }, "Invalid email format."},
		{"missing password", func(b map[string]any) { delete(b, "password") }, "Missing Password."},
		{"short password", func(b map[string]any) { b["password"] = "ab" }, "Password needs to be at least 3 characters long."},
		{"empty city", func(b map[string]any) { b["city"] = "" }, "City is empty."},
		{"missing country", func(b map[string]any) { delete(b, "country") }, "Missing Country."},
		{"wrong type", func(b map[string]any) { b["gender"] = 5 }, "Invalid request body."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := signUpBody("ada@example.com")
			tc.mutate(body)
			resp := a.do(t, http.MethodPost, "/sign_up", "", body)
			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.Equal(t, tc.message, resp.Message)
		})
	}

	resp := a.do(t, http.MethodPost, "/sign_up", "", "{")
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestRequestBindingMessages(t *testing.T) {
	a := newTestAPI(t)
	token := a.signUpAndIn(t, "ada@example.com")
	cases := []struct {
		name    string
		method  string
		path    string
		token   string
		body    map[string]any
		message string
	}{
		{"sign in without username", http.MethodPost, "/sign_in", "", map[string]any{"password": "secret"}, "Missing Email."},
		{"sign in with empty username", http.MethodPost, "/sign_in", "", map[string]any{"username": "", "password": "secret"}, "Email is empty."},
		{"sign in without password", http.MethodPost, "/sign_in", "", map[string]any{"username": "ada@example.com"}, "Missing Password."},
		{"empty old password", http.MethodPut, "/change_password", token, map[string]any{"oldpassword": "", "newpassword": "better"}, "Old password is empty."},
		{"missing new password", http.MethodPut, "/change_password", token, map[string]any{"oldpassword": "secret"}, "Missing New password."},
		{"short new password", http.MethodPut, "/change_password", token, map[string]any{"oldpassword": "secret", "newpassword": "ab"}, "Password needs to be at least 3 characters long."},
		{"missing message", http.MethodPost, "/post_message", token, map[string]any{"email": "ada@example.com"}, "Missing Message."},
		{"empty recipient", http.MethodPost, "/post_message", token, map[string]any{"message": "hi", "email": ""}, "Email is empty."},
		{"bad recipient", http.MethodPost, "/post_message", token, map[string]any{"message": "hi", "email": "ada"}, "Invalid email format."},
		{"coords without lon", http.MethodPost, "/post_message", token, map[string]any{"message": "hi", "coords": map[string]any{"lat": 0}}, "coords object need lat and lon fields."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := a.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.Equal(t, tc.message, resp.Message)
		})
	}

	resp := a.do(t, http.MethodPost, "/post_message", token, map[string]any{"message": "hi", "coords": map[string]any{"lat": 0, "lon": 0}})
	assert.Equal(t, http.StatusCreated, resp.Status, resp.Message)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	a := newTestAPI(t)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/get_user_data_by_token"},
		{http.MethodGet, "/get_user_data_by_email/ada@example.com"},
		{http.MethodPut, "/change_password"},
		{http.MethodPost, "/post_message"},
		{http.MethodGet, "/get_user_messages_by_token"},
		{http.MethodGet, "/get_user_messages_by_email/ada@example.com"},
		{http.MethodDelete, "/sign_out"},
	}
	for _, route := range routes {
		for _, token := range []string{"", "bogus"} {
			resp := a.do(t, route.method, route.path, token, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.Status, route.path)
			assert.Equal(t, msgNotSignedIn, resp.Message)
		}
	}
}

func TestUserData(t *testing.T) {
	a := newTestAPI(t)
	token := a.signUpAndIn(t, "ada@example.com")

	resp := a.do(t, http.MethodGet, "/get_user_data_by_token", token, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var user map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &user))
	assert.Equal(t, map[string]any{
		"email":      "ada@example.com",
		"firstname":  "Ada",
		"familyname": "Lovelace",
		"gender":     "female",
		"city":       "London",
		"country":    "UK",
	}, user)

	resp = a.do(t, http.MethodGet, "/get_user_data_by_email/ada@example.com", token, nil)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = a.do(t, http.MethodGet, "/get_user_data_by_email/bob@example.com", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "No such user.", resp.Message)
}

func TestChangePassword(t *testing.T) {
	a := newTestAPI(t)
	token := a.signUpAndIn(t, "ada@example.com")

	resp := a.do(t, http.MethodPut, "/change_password", token, map[string]any{"oldpassword": "wrong", "newpassword": "better"})
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "Wrong password.", resp.Message)

	resp = a.do(t, http.MethodPut, "/change_password", token, map[string]any{"oldpassword": "secret", "newpassword": "ab"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = a.do(t, http.MethodPut, "/change_password", token, map[string]any{"oldpassword": "secret", "newpassword": "better"})
	require.Equal(t, http.StatusOK, resp.Status)

	resp = a.do(t, http.MethodPost, "/sign_in", "", map[string]any{"username": "ada@example.com", "password": "better"})
	assert.Equal(t, http.StatusOK, resp.Status)
	resp = a.do(t, http.MethodPost, "/sign_in", "", map[string]any{"username": "ada@example.com", "password": "secret"})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestPostMessageStoresThenNotifies(t *testing.T) {
	a := newTestAPI(t)
	adaToken := a.signUpAndIn(t, "ada@example.com")
	a.signUpAndIn(t, "bob@example.com")

	resp := a.do(t, http.MethodPost, "/post_message", adaToken, map[string]any{
		"message": "hello bob",
		"email":   "bob@example.com",
		"coords":  map[string]any{"lat": 59.3293, "lon": 18.0686},
	})
	require.Equal(t, http.StatusCreated, resp.Status, resp.Message)

	require.Len(t, a.notifier.events, 1)
	assert.Equal(t, notification{account: "bob@example.com", action: protocol.ServerNewMessage}, a.notifier.events[0])
	assert.Equal(t, []int{1}, a.notifier.persisted)

	messages, err := a.store.ListMessages(context.Background(), "bob@example.com")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "ada@example.com", messages[0].Author)
	require.NotNil(t, messages[0].Region)
	assert.Equal(t, "59.32930,18.06860", *messages[0].Region)
}

func TestPostMessageDefaultsAndErrors(t *testing.T) {
	a := newTestAPI(t)
	token := a.signUpAndIn(t, "ada@example.com")

	resp := a.do(t, http.MethodPost, "/post_message", token, map[string]any{"message": "note to self"})
	require.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "ada@example.com", a.notifier.events[0].account)

	resp = a.do(t, http.MethodPost, "/post_message", token, map[string]any{"message": "hi", "email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "No such recipient.", resp.Message)

	resp = a.do(t, http.MethodPost, "/post_message", token, map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Message is empty.", resp.Message)

	resp = a.do(t, http.MethodPost, "/post_message", token, map[string]any{"message": "hi", "coords": map[string]any{"lat": 1.5}})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	assert.Len(t, a.notifier.events, 1)
}

func TestMessageListing(t *testing.T) {
	a := newTestAPI(t)
	adaToken := a.signUpAndIn(t, "ada@example.com")
	bobToken := a.signUpAndIn(t, "bob@example.com")

	a.do(t, http.MethodPost, "/post_message", bobToken, map[string]any{"message": "one", "email": "ada@example.com"})
	a.do(t, http.MethodPost, "/post_message", bobToken, map[string]any{"message": "two", "email": "ada@example.com"})

	resp := a.do(t, http.MethodGet, "/get_user_messages_by_token", adaToken, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var messages []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, map[string]any{"author": "bob@example.com", "contents": "one", "region": nil}, messages[0])

	resp = a.do(t, http.MethodGet, "/get_user_messages_by_email/ada@example.com", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, &messages))
	assert.Len(t, messages, 2)

	resp = a.do(t, http.MethodGet, "/get_user_messages_by_token", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `[]`, string(resp.Data))

	resp = a.do(t, http.MethodGet, "/get_user_messages_by_email/ghost@example.com", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestSignOut(t *testing.T) {
	a := newTestAPI(t)
	token := a.signUpAndIn(t, "ada@example.com")

	resp := a.do(t, http.MethodDelete, "/sign_out", token, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Successfully signed out.", resp.Message)

	resp = a.do(t, http.MethodGet, "/get_user_data_by_token", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestCreateTokenIsRandom(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token, err := createToken()
		require.NoError(t, err)
		require.Len(t, token, tokenLength)
		seen[token] = struct{}{}
	}
	assert.Len(t, seen, 100)
}
