package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradpush/extrapoints/internal/models"
)

func TestURL(t *testing.T) {
	relative := NewClient("/api", WithOrigin("http://portal.local:5001/"))
	assert.Equal(t, "http://portal.local:5001/api/applications", relative.URL("/applications"))
	assert.Equal(t, "http://portal.local:5001/api/login", relative.URL("login"))
	assert.Equal(t, "http://portal.local:5001", relative.Origin())

	absolute := NewClient("https://backend.example.com/api/", WithOrigin("http://ignored"))
	assert.Equal(t, "https://backend.example.com/api/faculties", absolute.URL("/faculties"))
	assert.Equal(t, "https://backend.example.com", absolute.Origin())

	assert.Equal(t, "http://other/x", absolute.URL("http://other/x"))
}

func TestRequestSendsJSON(t *testing.T) {
	var gotContentType, gotAuth, gotRequestID string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api", WithToken("secret-token"))
	raw, err := c.Request(context.Background(), http.MethodPost, "/things", map[string]string{"a": "b"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "b", gotBody["a"])
}

func TestRequestCallTokenOverride(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithToken("client-token"))
	_, err := c.Request(context.Background(), http.MethodGet, "/a", nil, WithCallToken("call-token"))
	require.NoError(t, err)
	_, err = c.Request(context.Background(), http.MethodGet, "/a", nil, WithCallToken(""))
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer call-token", ""}, gotAuth)
}

func TestRequestMultipartLeavesBoundaryToTransport(t *testing.T) {
	var contentType, application, fileName, fileBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		application = r.FormValue("application")
		f, header, err := r.FormFile("files")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		fileName = header.Filename
		fileBody = string(data)
		w.Write([]byte(`{"id":42}`))
	}))
	defer srv.Close()

	form := NewMultipart()
	require.NoError(t, form.AddJSON("application", map[string]string{"student_id": "2021001"}))
	form.AddFile("files", "cert.pdf", "application/pdf", strings.NewReader("pdf-bytes"))

	c := NewClient(srv.URL)
	_, err := c.Request(context.Background(), http.MethodPost, "/applications", form)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data; boundary="), contentType)
	assert.JSONEq(t, `{"student_id":"2021001"}`, application)
	assert.Equal(t, "cert.pdf", fileName)
	assert.Equal(t, "pdf-bytes", fileBody)
}

func TestRequestHTTPErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message", `{"message":"申请不存在"}`, "申请不存在"},
		{"error string", `{"error":"forbidden"}`, "forbidden"},
		{"error object", `{"success":false,"error":{"code":"NOT_FOUND","message":"not found"}}`, "not found"},
		{"msg", `{"msg":"bad"}`, "bad"},
		{"no message", `{}`, GenericMessage},
		{"not json", `<html>oops</html>`, GenericMessage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Request(context.Background(), http.MethodGet, "/x", nil)
			require.Error(t, err)

			assert.True(t, errors.Is(err, ErrHTTP))
			assert.False(t, errors.Is(err, ErrNetwork))
			assert.Equal(t, http.StatusNotFound, StatusCode(err))
			assert.Equal(t, tc.want, Message(err))
		})
	}
}

func TestRequestTimeoutIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.Request(context.Background(), http.MethodGet, "/slow", nil)
	require.Error(t, err)

	assert.True(t, IsTimeout(err))
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrNetwork))

	_, err = c.Request(context.Background(), http.MethodGet, "/slow", nil, WithCallTimeout(20*time.Millisecond))
	assert.True(t, IsTimeout(err))
}

func TestRequestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Request(context.Background(), http.MethodGet, "/x", nil)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrNetwork))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestRequestEmptyAndInvalidBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	raw, err := c.Request(context.Background(), http.MethodDelete, "/empty", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))

	_, err = c.Request(context.Background(), http.MethodGet, "/text", nil)
	assert.True(t, errors.Is(err, ErrDecode))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk gone")
}

func TestRequestBodyEncodingErrors(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()
	c := NewClient(srv.URL)

	form := NewMultipart()
	form.AddFile("files", "cert.pdf", "", failingReader{})
	_, err := c.Request(context.Background(), http.MethodPost, "/applications", form)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncode)
	assert.False(t, errors.Is(err, ErrDecode))
	assert.Contains(t, Message(err), "cert.pdf")

	_, err = c.Request(context.Background(), http.MethodPost, "/applications", map[string]interface{}{"bad": make(chan int)})
	assert.ErrorIs(t, err, ErrEncode)

	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "encode", re.Kind.String())
	assert.False(t, called)
}

func TestSessionCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			w.Write([]byte(`{"user":{"username":"t1","role":"teacher"}}`))
		case "/session-check":
			cookie, err := r.Cookie("session")
			if err != nil || cookie.Value != "abc" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"not logged in"}`))
				return
			}
			w.Write([]byte(`{"valid":true,"user":{"username":"t1","role":"teacher"}}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithSessionCookies())
	assert.True(t, c.HasSessionCookies())

	_, err := c.Login(context.Background(), models.Credentials{Username: "t1", Password: "pw"})
	require.NoError(t, err)

	status, err := c.SessionCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK())
	assert.Equal(t, "t1", status.User.Username)

	c.ClearCookies()
	_, err = c.SessionCheck(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "not logged in", Message(err))
}

func TestLoginToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var creds models.Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		assert.Equal(t, "1234", creds.Captcha)
		assert.Equal(t, "cap-1", creds.CaptchaID)
		w.Write([]byte(`{"access_token":"tok-123456789","user":{"id":7,"username":"s1","role":"student","studentId":"2021001"},"message":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithToken("stale"))
	res, err := c.Login(context.Background(), models.Credentials{
		Username: "s1", Password: "pw", Captcha: "1234", CaptchaID: "cap-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "tok-123456789", res.Token)
	assert.Equal(t, models.ID("7"), res.User.ID)
	assert.Equal(t, "2021001", res.User.StudentID)
	assert.Equal(t, "ok", res.Message)
	assert.Equal(t, "stale", c.Token())
}

func TestLoginValidatesInput(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").Login(context.Background(), models.Credentials{Username: "x"})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestSessionStatusOK(t *testing.T) {
	yes, no := true, false
	user := &models.User{Username: "u"}

	assert.False(t, (*SessionStatus)(nil).OK())
	assert.False(t, (&SessionStatus{Valid: &yes}).OK())
	assert.True(t, (&SessionStatus{User: user}).OK())
	assert.False(t, (&SessionStatus{User: user, Valid: &no}).OK())
	assert.True(t, (&SessionStatus{User: user, Authenticated: &yes}).OK())
}

func TestDecodeList(t *testing.T) {
	var bare []models.Faculty
	require.NoError(t, DecodeList(json.RawMessage(`[{"id":1,"name":"CS"}]`), &bare))
	assert.Len(t, bare, 1)

	var wrapped []models.Faculty
	require.NoError(t, DecodeList(json.RawMessage(`{"faculties":[{"id":1},{"id":2}]}`), &wrapped, "faculties"))
	assert.Len(t, wrapped, 2)

	var data []models.Faculty
	require.NoError(t, DecodeList(json.RawMessage(`{"data":[{"id":"x"}]}`), &data, "faculties"))
	require.Len(t, data, 1)
	assert.Equal(t, models.ID("x"), data[0].ID)

	var none []models.Faculty
	require.NoError(t, DecodeList(json.RawMessage(`{}`), &none, "faculties"))
	assert.Empty(t, none)
}

func TestResourceCRUD(t *testing.T) {
	type call struct {
		method, path, body string
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, call{r.Method, r.URL.RequestURI(), string(body)})
		switch {
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"data":{"id":9}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/rules":
			w.Write([]byte(`{"rules":[{"id":1,"name":"A","type":"academic","score":2}]}`))
		case r.Method == http.MethodGet:
			w.Write([]byte(`{"data":{"id":1,"name":"A","type":"academic","score":2}}`))
		default:
			w.Write([]byte(`{"message":"ok"}`))
		}
	}))
	defer srv.Close()

	rules := NewClient(srv.URL + "/api").Rules()
	ctx := context.Background()

	id, err := rules.Create(ctx, models.Rule{Name: "A", Type: "academic", Score: 2})
	require.NoError(t, err)
	assert.Equal(t, models.ID("9"), id)

	list, err := rules.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Name)

	rule, err := rules.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, rule.Score)

	require.NoError(t, rules.Update(ctx, "1", *rule))
	require.NoError(t, rules.SetStatus(ctx, "1", string(models.RuleDisabled)))
	require.NoError(t, rules.Delete(ctx, "1"))

	require.Len(t, calls, 6)
	assert.Equal(t, call{http.MethodPatch, "/api/admin/rules/1/status", `{"status":"disabled"}`}, calls[4])
	assert.Equal(t, http.MethodDelete, calls[5].method)
	assert.Equal(t, "/api/admin/rules/1", calls[5].path)
}

func TestOrganizationLookups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/faculties":
			w.Write([]byte(`[{"id":1,"name":"Engineering"}]`))
		case "/api/departments/1":
			w.Write([]byte(`{"departments":[{"id":10,"name":"CS","faculty_id":1}]}`))
		case "/api/majors/10":
			w.Write([]byte(`[{"id":100,"name":"SE","department_id":10}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/api")
	ctx := context.Background()

	faculties, err := c.Faculties(ctx)
	require.NoError(t, err)
	require.Len(t, faculties, 1)

	departments, err := c.Departments(ctx, faculties[0].ID)
	require.NoError(t, err)
	require.Len(t, departments, 1)
	assert.Equal(t, models.ID("1"), departments[0].FacultyID)

	majors, err := c.Majors(ctx, departments[0].ID)
	require.NoError(t, err)
	require.Len(t, majors, 1)
	assert.Equal(t, "SE", majors[0].Name)
}

func TestGraduateFiles(t *testing.T) {
	var uploadedCategory, uploadedFaculty string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			require.NoError(t, r.ParseMultipartForm(1<<20))
			uploadedCategory = r.FormValue("category")
			uploadedFaculty = r.FormValue("faculty_id")
			w.Write([]byte(`{"file":{"id":3,"file_name":"notice.pdf"}}`))
		case r.URL.Path == "/admin/public/graduate-files":
			assert.Equal(t, "2", r.URL.Query().Get("faculty_id"))
			w.Write([]byte(`{"files":[{"id":3,"file_name":"notice.pdf"}]}`))
		case r.Method == http.MethodDelete:
			assert.Equal(t, "/admin/graduate-files/3", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	file, err := c.UploadGraduateFile(ctx, GraduateFileUpload{
		File:      models.Upload{Name: "notice.pdf", Content: strings.NewReader("x")},
		Category:  "graduate",
		FacultyID: "2",
	})
	require.NoError(t, err)
	assert.Equal(t, "notice.pdf", file.Name)
	assert.Equal(t, "graduate", uploadedCategory)
	assert.Equal(t, "2", uploadedFaculty)

	files, err := c.PublicGraduateFiles(ctx, "2")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	require.NoError(t, c.DeleteGraduateFile(ctx, "3"))
}
