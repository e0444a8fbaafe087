package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/goGateway/jwt"
)

type loginData struct {
	User struct {
		Name        string   `json:"name"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	} `json:"user"`
	Token     tokenBody `json:"token"`
	CSRFToken string    `json:"csrf_token"`
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("devserver-test-secret-0123456789"),
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	s, err := New(Config{Tokens: tokens})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for user, role := range map[string]string{"ada": RoleEditor, "vic": RoleViewer, "root": RoleAdmin} {
		if err := s.AddUser(user, "correct-horse", role); err != nil {
			t.Fatalf("add user %s: %v", user, err)
		}
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any, header http.Header) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func login(t *testing.T, base, user string) loginData {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, base+"/auth/login", map[string]string{
		"username": user,
		"password": "correct-horse",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var data loginData
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return data
}

func authHeader(d loginData, csrf bool) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+d.Token.AccessToken)
	if csrf {
		h.Set("X-CSRF-Token", d.CSRFToken)
	}
	return h
}

func TestLoginIssuesTokensAndCSRF(t *testing.T) {
	s, ts := newTestServer(t)

	d := login(t, ts.URL, "ada")
	if d.Token.AccessToken == "" || d.Token.RefreshToken == "" || d.CSRFToken == "" {
		t.Fatalf("login result incomplete: %+v", d)
	}
	if d.User.Name != "ada" || d.User.Role != RoleEditor {
		t.Fatalf("user = %+v", d.User)
	}
	if s.Stats().Logins != 1 {
		t.Fatalf("logins = %d", s.Stats().Logins)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/auth/login", map[string]string{
		"username": "ada",
		"password": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, ok := body["message"]; !ok {
		t.Fatalf("expected message in error body")
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	_, ts := newTestServer(t)
	d := login(t, ts.URL, "ada")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/auth/refresh", map[string]string{
		"refresh_token": d.Token.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var tok tokenBody
	if err := json.Unmarshal(body["data"], &tok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tok.AccessToken == "" || tok.AccessToken == d.Token.AccessToken {
		t.Fatalf("expected a new access token")
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/auth/refresh", map[string]string{
		"refresh_token": d.Token.AccessToken,
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("access token accepted as refresh token: %d", resp.StatusCode)
	}
}

func TestRecordsRequireBearer(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/records", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMutationRequiresCSRF(t *testing.T) {
	_, ts := newTestServer(t)
	d := login(t, ts.URL, "ada")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/records", map[string]string{"title": "x"}, authHeader(d, false))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status without csrf = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/records", map[string]string{"title": "x"}, authHeader(d, true))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status with csrf = %d", resp.StatusCode)
	}
}

func TestViewerCannotWrite(t *testing.T) {
	_, ts := newTestServer(t)
	d := login(t, ts.URL, "vic")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/records", map[string]string{"title": "x"}, authHeader(d, true))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/records", nil, authHeader(d, false))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read status = %d", resp.StatusCode)
	}
}

func TestAdminRootGrant(t *testing.T) {
	_, ts := newTestServer(t)
	d := login(t, ts.URL, "root")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/records", map[string]string{"title": "x"}, authHeader(d, true))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRecordLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	d := login(t, ts.URL, "ada")
	h := authHeader(d, true)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/records", map[string]string{"title": "first"}, h)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var rec Record
	if err := json.Unmarshal(body["data"], &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Owner != "ada" || rec.Status != "draft" {
		t.Fatalf("record = %+v", rec)
	}

	resp, body = doJSON(t, http.MethodPatch, ts.URL+"/records/"+rec.ID, map[string]string{"status": "submitted"}, h)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body["data"], &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != "submitted" || rec.Title != "first" {
		t.Fatalf("patched record = %+v", rec)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/records/"+rec.ID, nil, h)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/records/"+rec.ID, nil, h)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", resp.StatusCode)
	}
}

func TestValidationErrorsCarryFields(t *testing.T) {
	_, ts := newTestServer(t)
	d := login(t, ts.URL, "ada")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/records", map[string]string{"status": "bogus"}, authHeader(d, true))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var fields map[string][]string
	if err := json.Unmarshal(body["errors"], &fields); err != nil {
		t.Fatalf("decode errors: %v", err)
	}
	if len(fields["title"]) == 0 || len(fields["status"]) == 0 {
		t.Fatalf("fields = %v", fields)
	}
}

func TestRevokedTokenRejected(t *testing.T) {
	s, ts := newTestServer(t)
	d := login(t, ts.URL, "ada")

	s.RevokeToken(d.Token.AccessToken)
	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/records", nil, authHeader(d, false))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestFailNextInjectsFaults(t *testing.T) {
	s, ts := newTestServer(t)
	d := login(t, ts.URL, "ada")

	s.FailNext(2, http.StatusServiceUnavailable)
	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/records", nil, authHeader(d, false))
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("attempt %d status = %d", i, resp.StatusCode)
		}
	}
	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/records", nil, authHeader(d, false))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after faults = %d", resp.StatusCode)
	}
	if st := s.Stats(); st.Rejected != 2 || st.Requests != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestUploadThenDownload(t *testing.T) {
	_, ts := newTestServer(t)
	d := login(t, ts.URL, "ada")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte("hello"))
	_ = mw.WriteField("kind", "note")
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/files", &buf)
	req.Header = authHeader(d, true)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/files/notes.txt", nil)
	req.Header = authHeader(d, false)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "hello" {
		t.Fatalf("body = %q", data)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename=notes.txt` {
		t.Fatalf("content-disposition = %q", cd)
	}
}
