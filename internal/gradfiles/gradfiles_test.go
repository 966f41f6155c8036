package gradfiles

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/pkg/client"
)

type portal struct {
	mu     sync.Mutex
	files  []string
	fields []map[string]string
	failOn string
}

func (p *portal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/admin/graduate-files":
		_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		reader := multipart.NewReader(r.Body, params["boundary"])
		fields := map[string]string{}
		name := ""
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "file" {
				name = part.FileName()
				continue
			}
			fields[part.FormName()] = string(data)
		}
		if name == p.failOn {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			w.Write([]byte(`{"message":"file too large"}`))
			return
		}
		p.files = append(p.files, name)
		p.fields = append(p.fields, fields)
		w.Write([]byte(`{"file":{"id":` + strconv.Itoa(len(p.files)) + `,"file_name":"` + name + `"}}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/admin/public/graduate-files":
		var items []string
		for i, name := range p.files {
			items = append(items, `{"id":`+strconv.Itoa(i+1)+`,"file_name":"`+name+`","faculty_id":`+r.URL.Query().Get("faculty_id")+`}`)
		}
		w.Write([]byte(`{"files":[` + strings.Join(items, ",") + `]}`))
	case r.Method == http.MethodDelete && r.URL.Path == "/api/admin/graduate-files/1":
		w.Write([]byte(`{"message":"deleted"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"file not found"}`))
	}
}

func newStore(t *testing.T, p *portal) *Store {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return New(client.NewClient(srv.URL+"/api"), nil)
}

func upload(name string) client.GraduateFileUpload {
	return client.GraduateFileUpload{
		File:     models.Upload{Name: name, Content: strings.NewReader("content")},
		Uploader: "admin",
		Category: "notice",
	}
}

func TestUploadThenReload(t *testing.T) {
	p := &portal{}
	store := newStore(t, p)

	ok := store.Upload(context.Background(), []client.GraduateFileUpload{upload("a.pdf"), upload("b.pdf")}, "3")

	require.True(t, ok, store.Err())
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, p.files)
	assert.Equal(t, "3", p.fields[0]["faculty_id"])
	assert.Equal(t, "admin", p.fields[1]["uploader"])
	assert.Equal(t, "notice", p.fields[1]["category"])

	files := store.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "b.pdf", files[1].Name)
	assert.Equal(t, models.ID("3"), files[1].FacultyID)
	assert.False(t, store.Loading())
}

func TestUploadStopsAtFirstFailure(t *testing.T) {
	p := &portal{failOn: "big.pdf"}
	store := newStore(t, p)

	ok := store.Upload(context.Background(), []client.GraduateFileUpload{upload("a.pdf"), upload("big.pdf"), upload("c.pdf")}, "1")

	assert.False(t, ok)
	assert.Equal(t, "failed to upload big.pdf: file too large", store.Err())
	assert.Equal(t, []string{"a.pdf"}, p.files)
	assert.Empty(t, store.Files())
}

func TestDelete(t *testing.T) {
	p := &portal{files: []string{"a.pdf", "b.pdf"}}
	store := newStore(t, p)
	_, err := store.Load(context.Background(), "2")
	require.NoError(t, err)

	assert.True(t, store.Delete(context.Background(), "1"))
	files := store.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "b.pdf", files[0].Name)

	assert.False(t, store.Delete(context.Background(), "9"))
	assert.Equal(t, http.StatusNotFound, client.StatusCode(store.LastError()))
	assert.Len(t, store.Files(), 1)
}
