package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/geocoder89/forumhub/internal/auth"
	"github.com/geocoder89/forumhub/internal/rpc"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "handlers-test-secret"

type procedureSet interface {
	Procedures() []rpc.Procedure
}

func newServer(t *testing.T, sets ...procedureSet) (*gin.Engine, *auth.Manager) {
	t.Helper()

	m, err := auth.NewManager(testSecret, 2*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	d := rpc.NewDispatcher(m)
	for _, s := range sets {
		d.Register(s.Procedures()...)
	}

	r := gin.New()
	r.GET("/rpc/:procedure", d.ServeRPC)
	r.POST("/rpc/:procedure", d.ServeRPC)
	return r, m
}

func tokenFor(t *testing.T, m *auth.Manager, userID string, role auth.Role) string {
	t.Helper()

	tok, err := m.Issue(auth.Identity{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok.Token
}

func newID() string { return uuid.NewString() }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func mutate(t *testing.T, r *gin.Engine, procedure, token string, input any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	body, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/rpc/"+procedure, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, r, req, token)
}

func query(t *testing.T, r *gin.Engine, procedure, token string, input any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	target := "/rpc/" + procedure
	if input != nil {
		raw, err := json.Marshal(input)
		if err != nil {
			t.Fatalf("marshal input: %v", err)
		}
		target += "?input=" + url.QueryEscape(string(raw))
	}

	req := httptest.NewRequest(http.MethodGet, target, nil)
	return do(t, r, req, token)
}

func do(t *testing.T, r *gin.Engine, req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	if token != "" {
		req.AddCookie(&http.Cookie{Name: rpc.SessionCookieName, Value: token})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope %q: %v", w.Body.String(), err)
	}
	if env.Status != w.Code {
		t.Fatalf("envelope status %d does not mirror HTTP status %d", env.Status, w.Code)
	}
	return w, env
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()

	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data %q: %v", string(env.Data), err)
	}
}
