package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trackship/server/src/auth"
	"github.com/trackship/server/src/hub"
	"github.com/trackship/server/src/store"
	"github.com/trackship/server/src/types"
)

// fakeStore is an in-memory store.Store for handler tests.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	shipments map[string]store.ShipmentView
	details   map[string]store.ShipmentDetail
	countries []store.Country
	states    []store.State
	failWith  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]store.User),
		shipments: make(map[string]store.ShipmentView),
		details:   make(map[string]store.ShipmentDetail),
	}
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return store.User{}, f.failWith
	}
	u, ok := f.users[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) CreateUser(_ context.Context, email, passwordHash, role string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; ok {
		return store.User{}, store.ErrDuplicateEmail
	}
	u := store.User{ID: "u-" + email, Email: email, Password: passwordHash, Role: role}
	f.users[email] = u
	return u, nil
}

func (f *fakeStore) ListShipments(context.Context) ([]store.ShipmentView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.ShipmentView{}
	for _, v := range f.shipments {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeStore) GetShipmentByID(_ context.Context, id string) (store.ShipmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok {
		return store.ShipmentDetail{}, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) GetShipmentByTracking(_ context.Context, trackingNumber string) (store.ShipmentView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.shipments {
		if v.TrackingNumber == trackingNumber {
			return v, nil
		}
	}
	return store.ShipmentView{}, store.ErrNotFound
}

func (f *fakeStore) CreateShipment(_ context.Context, trackingNumber string, in store.ShipmentInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "s-" + trackingNumber
	f.shipments[id] = store.ShipmentView{ID: id, TrackingNumber: trackingNumber, Status: "Processing"}
	f.details[id] = store.ShipmentDetail{ID: id, TrackingNumber: trackingNumber, Status: "Processing",
		Sender: store.Party{Name: in.SenderName}, Recipient: store.Party{Name: in.RecipientName}}
	return id, nil
}

func (f *fakeStore) UpdateShipment(_ context.Context, id string, in store.ShipmentInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Sender.Name = in.SenderName
	d.Recipient.Name = in.RecipientName
	f.details[id] = d
	return nil
}

func (f *fakeStore) DeleteShipment(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.shipments[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.shipments, id)
	delete(f.details, id)
	return nil
}

func (f *fakeStore) UpdateShipmentStatus(_ context.Context, id, status, location, description string) (store.ShipmentView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.shipments[id]
	if !ok {
		return store.ShipmentView{}, store.ErrNotFound
	}
	v.Status = status
	v.History = append([]store.HistoryEntry{{Status: status, Location: location, Description: description, Date: time.Now()}}, v.History...)
	f.shipments[id] = v
	return v, nil
}

func (f *fakeStore) ListCountries(context.Context) ([]store.Country, error) {
	return f.countries, nil
}

func (f *fakeStore) ListStates(context.Context) ([]store.State, error) {
	return f.states, nil
}

func (f *fakeStore) ListStatesByCountry(_ context.Context, countryID int) ([]store.State, error) {
	out := []store.State{}
	for _, s := range f.states {
		if s.CountryID == countryID {
			out = append(out, s)
		}
	}
	return out, nil
}

type testEnv struct {
	app    *fiber.App
	store  *fakeStore
	tokens *auth.Tokens
	hub    *hub.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newFakeStore()
	tokens := auth.NewTokens("test-secret", time.Hour)
	h := hub.New(tokens, zerolog.Nop())
	go h.Run()
	t.Cleanup(func() { h.Stop() })

	srv := NewServer(st, tokens, h, nil, zerolog.Nop())
	return &testEnv{app: srv.Router("http://localhost:8080"), store: st, tokens: tokens, hub: h}
}

func (e *testEnv) seedUser(t *testing.T, email, password, role string) store.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u, err := e.store.CreateUser(context.Background(), email, hash, role)
	require.NoError(t, err)
	return u
}

func (e *testEnv) tokenFor(t *testing.T, u store.User) string {
	t.Helper()
	token, err := e.tokens.Sign(types.Identity{UserID: u.ID, Email: u.Email, Role: u.Role})
	require.NoError(t, err)
	return token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.request(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin@example.com", "admin123", "admin")

	resp, body := env.request(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "admin@example.com", "password": "admin123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["token"])
	user := data["user"].(map[string]any)
	assert.Equal(t, "admin@example.com", user["email"])
	assert.Equal(t, "admin", user["role"])

	// The issued token verifies against the same signer.
	identity, err := env.tokens.Verify(data["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "admin", identity.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin@example.com", "admin123", "admin")

	resp, body := env.request(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", body["message"])

	resp, _ = env.request(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "nobody@example.com", "password": "admin123"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "not-an-email", "password": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", "admin123", "admin")
	user := env.seedUser(t, "user@example.com", "user1234", "user")

	payload := map[string]string{"email": "new@example.com", "password": "secret1", "role": "user"}

	resp, _ := env.request(t, http.MethodPost, "/api/auth/register", "", payload)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/api/auth/register", env.tokenFor(t, user), payload)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := env.request(t, http.MethodPost, "/api/auth/register", env.tokenFor(t, admin), payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "new@example.com", created["email"])

	// Duplicate email.
	resp, body = env.request(t, http.MethodPost, "/api/auth/register", env.tokenFor(t, admin), payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "User with this email already exists", body["message"])
}

func TestVerifyAndMe(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user@example.com", "user1234", "user")
	token := env.tokenFor(t, user)

	resp, body := env.request(t, http.MethodGet, "/api/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Token is valid", body["message"])

	resp, body = env.request(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "user@example.com", me["email"])

	resp, _ = env.request(t, http.MethodGet, "/api/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPublicTrackingLookup(t *testing.T) {
	env := newTestEnv(t)
	env.store.shipments["s-1"] = store.ShipmentView{
		ID: "s-1", TrackingNumber: "TSE1234567890", Status: "In Transit",
	}

	resp, body := env.request(t, http.MethodGet, "/api/tracking/TSE1234567890", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "TSE1234567890", data["trackingNumber"])
	assert.Equal(t, "In Transit", data["status"])

	resp, body = env.request(t, http.MethodGet, "/api/tracking/TSE0000000000", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Shipment not found", body["message"])
}

func TestAdminRoutesAreGated(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user@example.com", "user1234", "user")

	resp, _ := env.request(t, http.MethodGet, "/api/admin/shipments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.request(t, http.MethodGet, "/api/admin/shipments", env.tokenFor(t, user), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestShipmentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", "admin123", "admin")
	token := env.tokenFor(t, admin)

	// Create.
	resp, body := env.request(t, http.MethodPost, "/api/admin/shipments", token, store.ShipmentInput{
		SenderName:    "Acme Corp",
		RecipientName: "Jane Doe",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	id := data["id"].(string)
	trackingNumber := data["trackingNumber"].(string)
	assert.Regexp(t, `^TSE\d{10}$`, trackingNumber)

	// Fetch.
	resp, body = env.request(t, http.MethodGet, "/api/admin/shipments/"+id, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := body["data"].(map[string]any)
	assert.Equal(t, trackingNumber, detail["trackingNumber"])

	// Update.
	resp, _ = env.request(t, http.MethodPut, "/api/admin/shipments/"+id, token, store.ShipmentInput{
		SenderName:    "Acme Corp",
		RecipientName: "Janet Doe",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Missing names rejected.
	resp, _ = env.request(t, http.MethodPost, "/api/admin/shipments", token, store.ShipmentInput{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Delete, then 404 on repeat.
	resp, _ = env.request(t, http.MethodDelete, "/api/admin/shipments/"+id, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.request(t, http.MethodDelete, "/api/admin/shipments/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusUpdateBroadcastsToHub(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", "admin123", "admin")
	token := env.tokenFor(t, admin)

	env.store.shipments["s-1"] = store.ShipmentView{
		ID: "s-1", TrackingNumber: "TSE1234567890", Status: "Processing",
	}

	conn := newRecordingConn()
	client := hub.NewClient("watcher", conn, env.hub)
	env.hub.Register(client)
	go client.WritePump()
	time.Sleep(20 * time.Millisecond)

	resp, body := env.request(t, http.MethodPut, "/api/admin/shipments/s-1/status", token,
		map[string]string{"status": "Delivered", "location": "Front door", "description": "Left with neighbor"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Delivered", data["status"])

	// The committed view is pushed to every connected client.
	time.Sleep(30 * time.Millisecond)
	updates := conn.ofType(types.TypeShipmentUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "TSE1234567890", updates[0].TrackingNumber)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(updates[0].Data, &payload))
	assert.Equal(t, "Delivered", payload["status"])

	// Unknown shipment does not broadcast.
	resp, _ = env.request(t, http.MethodPut, "/api/admin/shipments/missing/status", token,
		map[string]string{"status": "Delivered"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, conn.ofType(types.TypeShipmentUpdate), 1)
}

func TestStatesByCountry(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", "admin123", "admin")
	token := env.tokenFor(t, admin)
	env.store.states = []store.State{
		{ID: 1, Name: "California", Code: "CA", CountryID: 1, CountryName: "United States"},
		{ID: 2, Name: "Ontario", Code: "ON", CountryID: 2, CountryName: "Canada"},
	}

	resp, body := env.request(t, http.MethodGet, "/api/admin/states/country/1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	states := body["data"].([]any)
	require.Len(t, states, 1)
	assert.Equal(t, "California", states[0].(map[string]any)["name"])

	resp, _ = env.request(t, http.MethodGet, "/api/admin/states/country/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// recordingConn satisfies types.Conn and records writes.
type recordingConn struct {
	mu      sync.Mutex
	written []types.Message
}

func newRecordingConn() *recordingConn { return &recordingConn{} }

func (r *recordingConn) WriteJSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := v.(types.Message); ok {
		r.written = append(r.written, msg)
	}
	return nil
}

func (r *recordingConn) ReadJSON(any) error { return errors.New("not implemented") }
func (r *recordingConn) Close() error       { return nil }

func (r *recordingConn) ofType(msgType string) []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Message
	for _, msg := range r.written {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}
