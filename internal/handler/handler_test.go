package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"absensi/internal/attendance"
	"absensi/internal/auth"
	"absensi/internal/user"
	"absensi/internal/verify"
)

// fakeUsers implements UserStore and attendance.Directory in memory with the
// same uniqueness semantics as the Postgres repository.
type fakeUsers struct {
	seq   int
	users map[string]user.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]user.User)}
}

func (f *fakeUsers) Create(_ context.Context, u user.User) (user.User, error) {
	if u.RFIDTag != nil {
		tag := user.NormalizeTag(*u.RFIDTag)
		u.RFIDTag = &tag
	}
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return user.User{}, user.ErrDuplicateUsername
		}
		if existing.RFIDTag != nil && u.RFIDTag != nil && *existing.RFIDTag == *u.RFIDTag {
			return user.User{}, user.ErrDuplicateRFID
		}
	}
	f.seq++
	u.ID = fmt.Sprintf("u-%d", f.seq)
	u.CreatedAt = time.Now().UTC()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (user.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsers) GetByRFID(_ context.Context, tag string) (user.User, error) {
	for _, u := range f.users {
		if u.RFIDTag != nil && *u.RFIDTag == tag {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsers) List(_ context.Context) ([]user.Public, error) {
	var res []user.Public
	for _, u := range f.users {
		res = append(res, u.Public())
	}
	return res, nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	if u.Role == user.RoleAdmin {
		return user.ErrProtectedRole
	}
	delete(f.users, id)
	return nil
}

// fakeEntries mirrors the conditional-write semantics of the Postgres repo.
type fakeEntries struct {
	entries map[string]*attendance.Entry
}

func entryKey(userID string, day time.Time) string {
	return userID + "|" + day.Format("2006-01-02")
}

func (f *fakeEntries) ClockIn(_ context.Context, userID string, day, now time.Time) (attendance.Entry, bool, error) {
	k := entryKey(userID, day)
	if _, ok := f.entries[k]; ok {
		return attendance.Entry{}, false, nil
	}
	e := &attendance.Entry{ID: k, UserID: userID, Day: day, ClockIn: now, Status: attendance.StatusPresent}
	f.entries[k] = e
	return *e, true, nil
}

func (f *fakeEntries) ClockOut(_ context.Context, userID string, day, now time.Time) (attendance.Entry, bool, error) {
	e, ok := f.entries[entryKey(userID, day)]
	if !ok || e.ClockOut != nil {
		return attendance.Entry{}, false, nil
	}
	out := now
	e.ClockOut = &out
	return *e, true, nil
}

func (f *fakeEntries) ListForUser(_ context.Context, userID string) ([]attendance.Entry, error) {
	var res []attendance.Entry
	for _, e := range f.entries {
		if e.UserID == userID {
			res = append(res, *e)
		}
	}
	return res, nil
}

type env struct {
	router   *gin.Engine
	users    *fakeUsers
	sessions *verify.Memory
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := newFakeUsers()
	sessions := verify.NewMemory(5 * time.Minute)
	att := attendance.NewService(&fakeEntries{entries: make(map[string]*attendance.Entry)}, users, sessions, nil, time.UTC)

	hash, err := auth.HashPassword("admin123")
	if err != nil {
		t.Fatalf("hash admin password: %v", err)
	}
	if _, err := users.Create(context.Background(), user.User{
		Name: "Administrator", Username: "admin", PasswordHash: hash, Role: user.RoleAdmin,
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	r := gin.New()
	h := New(users, att, sessions, "test-secret", "absensi", 8*time.Hour)
	h.Register(r)
	return &env{router: r, users: users, sessions: sessions}
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	}
	return w, parsed
}

func (e *env) login(t *testing.T, username, password string) string {
	t.Helper()
	w, body := e.do(t, http.MethodPost, "/api/login", "", gin.H{"username": username, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, w.Code, w.Body.String())
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login %s: no token in %v", username, body)
	}
	return token
}

func zeros() []float64 { return make([]float64, user.DescriptorLen) }

func (e *env) enrollAlice(t *testing.T, adminToken string) {
	t.Helper()
	w, _ := e.do(t, http.MethodPost, "/api/admin/enroll", adminToken, gin.H{
		"name": "alice", "username": "alice", "password": "rahasia", "rfidTag": "AB12", "faceDescriptor": zeros(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("enroll alice: status %d body %s", w.Code, w.Body.String())
	}
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)

	w, body := e.do(t, http.MethodPost, "/api/login", "", gin.H{"username": "admin", "password": "admin123"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	if body["role"] != user.RoleAdmin {
		t.Fatalf("expected admin role, got %v", body["role"])
	}
	if body["userId"] == "" {
		t.Fatal("expected userId in response")
	}

	if w, _ := e.do(t, http.MethodPost, "/api/login", "", gin.H{"username": "admin", "password": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodPost, "/api/login", "", gin.H{"username": "ghost", "password": "x"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", w.Code)
	}
}

func TestAdminGate(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin", "admin123")
	e.enrollAlice(t, admin)
	alice := e.login(t, "alice", "rahasia")

	if w, _ := e.do(t, http.MethodGet, "/api/admin/users", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodGet, "/api/admin/users", alice, nil); w.Code != http.StatusForbidden {
		t.Fatalf("user token: expected 403, got %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodGet, "/api/admin/users", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("admin token: expected 200, got %d", w.Code)
	}
}

func TestEnrollValidation(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin", "admin123")
	e.enrollAlice(t, admin)

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing name", gin.H{"username": "bob", "password": "x", "faceDescriptor": zeros()}},
		{"missing password", gin.H{"name": "bob", "username": "bob", "faceDescriptor": zeros()}},
		{"short descriptor", gin.H{"name": "bob", "username": "bob", "password": "x", "faceDescriptor": make([]float64, 4)}},
		{"duplicate username", gin.H{"name": "alice2", "username": "alice", "password": "x", "faceDescriptor": zeros()}},
		{"duplicate rfid lowercase", gin.H{"name": "bob", "username": "bob", "password": "x", "rfidTag": "ab12", "faceDescriptor": zeros()}},
	}
	for _, tc := range cases {
		w, _ := e.do(t, http.MethodPost, "/api/admin/enroll", admin, tc.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d body %s", tc.name, w.Code, w.Body.String())
		}
	}
}

func TestFaceDescriptorRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin", "admin123")

	descriptor := make([]float64, user.DescriptorLen)
	for i := range descriptor {
		descriptor[i] = float64(i) / 2
	}
	w, _ := e.do(t, http.MethodPost, "/api/admin/enroll", admin, gin.H{
		"name": "bob", "username": "bob", "password": "x", "faceDescriptor": descriptor,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("enroll: status %d body %s", w.Code, w.Body.String())
	}

	bob := e.login(t, "bob", "x")
	w, body := e.do(t, http.MethodGet, "/api/user/face", bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get face: status %d", w.Code)
	}
	got, _ := body["descriptor"].([]any)
	if len(got) != user.DescriptorLen {
		t.Fatalf("expected %d values, got %d", user.DescriptorLen, len(got))
	}
	for i, v := range got {
		if v.(float64) != descriptor[i] {
			t.Fatalf("descriptor[%d]: expected %v, got %v", i, descriptor[i], v)
		}
	}

	// Admin has no descriptor enrolled.
	if w, _ := e.do(t, http.MethodGet, "/api/user/face", admin, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing descriptor, got %d", w.Code)
	}
}

func TestAbsenScenario(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin", "admin123")
	e.enrollAlice(t, admin)
	alice := e.login(t, "alice", "rahasia")

	// Unregistered card.
	if w, _ := e.do(t, http.MethodPost, "/absen", "", gin.H{"uid": "ZZ99"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown uid: expected 404, got %d", w.Code)
	}

	// Registered card without prior face verification.
	if w, _ := e.do(t, http.MethodPost, "/absen", "", gin.H{"uid": "AB12"}); w.Code != http.StatusForbidden {
		t.Fatalf("unverified: expected 403, got %d", w.Code)
	}

	// Verify then clock in; the device sends the uid lowercase.
	if w, _ := e.do(t, http.MethodPost, "/api/verify-face", alice, nil); w.Code != http.StatusOK {
		t.Fatalf("verify-face: status %d", w.Code)
	}
	w, body := e.do(t, http.MethodPost, "/absen", "", gin.H{"uid": "ab12"})
	if w.Code != http.StatusOK {
		t.Fatalf("clock in: status %d body %s", w.Code, w.Body.String())
	}
	if body["msg"] != "Clock In berhasil" || body["name"] != "alice" {
		t.Fatalf("unexpected clock-in response %v", body)
	}

	// Verify again and clock out.
	e.do(t, http.MethodPost, "/api/verify-face", alice, nil)
	w, body = e.do(t, http.MethodPost, "/absen", "", gin.H{"uid": "AB12"})
	if w.Code != http.StatusOK {
		t.Fatalf("clock out: status %d body %s", w.Code, w.Body.String())
	}
	if body["msg"] != "Clock Out berhasil" {
		t.Fatalf("unexpected clock-out response %v", body)
	}

	// Third scan of the day is terminal.
	e.do(t, http.MethodPost, "/api/verify-face", alice, nil)
	w, body = e.do(t, http.MethodPost, "/absen", "", gin.H{"uid": "AB12"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("third scan: expected 400, got %d", w.Code)
	}
	if body["msg"] != "Sudah absen masuk & keluar hari ini" {
		t.Fatalf("unexpected terminal response %v", body)
	}

	// Missing uid.
	if w, _ := e.do(t, http.MethodPost, "/absen", "", gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing uid: expected 400, got %d", w.Code)
	}

	// History shows the completed entry.
	w, body = e.do(t, http.MethodGet, "/api/user/attendance", alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("attendance history: status %d", w.Code)
	}
	entries, _ := body["attendance"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0].(map[string]any)
	if entry["status"] != attendance.StatusPresent {
		t.Fatalf("expected status %q, got %v", attendance.StatusPresent, entry["status"])
	}
	if entry["clockOut"] == nil || entry["clockOut"] == "" {
		t.Fatalf("expected clockOut set, got %v", entry["clockOut"])
	}
}

func TestListUsersSanitized(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin", "admin123")
	e.enrollAlice(t, admin)

	w, _ := e.do(t, http.MethodGet, "/api/admin/users", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	raw := w.Body.String()
	for _, leaked := range []string{"passwordHash", "password_hash", "faceDescriptor", "face_descriptor"} {
		if strings.Contains(raw, leaked) {
			t.Fatalf("user list leaks %q: %s", leaked, raw)
		}
	}
}

func TestDeleteUser(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin", "admin123")
	e.enrollAlice(t, admin)

	alice, err := e.users.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("lookup alice: %v", err)
	}
	adminUser, err := e.users.GetByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("lookup admin: %v", err)
	}

	if w, _ := e.do(t, http.MethodDelete, "/api/admin/users/"+adminUser.ID, admin, nil); w.Code != http.StatusForbidden {
		t.Fatalf("delete admin: expected 403, got %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodDelete, "/api/admin/users/nope", admin, nil); w.Code != http.StatusNotFound {
		t.Fatalf("delete unknown: expected 404, got %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodDelete, "/api/admin/users/"+alice.ID, admin, nil); w.Code != http.StatusOK {
		t.Fatalf("delete alice: expected 200, got %d", w.Code)
	}
	if _, err := e.users.GetByUsername(context.Background(), "alice"); err == nil {
		t.Fatal("expected alice gone after delete")
	}
}
