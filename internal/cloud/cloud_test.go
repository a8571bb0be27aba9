package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDrive serves the subset of the Drive v3 API used by DrivePersister.
type fakeDrive struct {
	mu      sync.Mutex
	files   map[string][]byte
	names   map[string]string
	nextID  int
	authHdr []string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{files: map[string][]byte{}, names: map[string]string{}}
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authHdr = append(f.authHdr, r.Header.Get("Authorization"))
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/drive/v3/files":
		var files []map[string]string
		for id, name := range f.names {
			if strings.Contains(r.URL.Query().Get("q"), "'"+name+"'") {
				files = append(files, map[string]string{"id": id, "name": name})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": files})
	case r.Method == http.MethodPost && r.URL.Path == "/drive/v3/files":
		var meta struct {
			Name    string   `json:"name"`
			Parents []string `json:"parents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&meta)
		if len(meta.Parents) != 1 || meta.Parents[0] != "appDataFolder" {
			http.Error(w, "bad parents", http.StatusBadRequest)
			return
		}
		f.nextID++
		id := "f" + string(rune('0'+f.nextID))
		f.names[id] = meta.Name
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/upload/drive/v3/files/"):
		id := strings.TrimPrefix(r.URL.Path, "/upload/drive/v3/files/")
		b, _ := io.ReadAll(r.Body)
		f.files[id] = b
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/drive/v3/files/"):
		id := strings.TrimPrefix(r.URL.Path, "/drive/v3/files/")
		b, ok := f.files[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(b)
	default:
		http.NotFound(w, r)
	}
}

func TestDrivePersisterRoundTrip(t *testing.T) {
	fake := newFakeDrive()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	p := NewDrivePersister(NewHTTPClient(ctx, "tok-1", 0), srv.URL, "deliblab/app-state")
	blob, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, blob)

	require.NoError(t, p.Save(ctx, []byte(`{"v":1}`)))
	require.NoError(t, p.Save(ctx, []byte(`{"v":2}`)))
	assert.Len(t, fake.names, 1, "second save reuses the file")
	for _, name := range fake.names {
		assert.Equal(t, "deliblab-app-state.json", name)
	}

	// a fresh persister finds the existing file by name
	q := NewDrivePersister(NewHTTPClient(ctx, "tok-1", 0), srv.URL, "deliblab/app-state")
	blob, err = q.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(blob))

	for _, h := range fake.authHdr {
		assert.Equal(t, "Bearer tok-1", h)
	}
}

func TestDrivePersisterRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewDrivePersister(srv.Client(), srv.URL, "k")
	_, err := p.Load(context.Background())
	var remote *ErrRemote
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusUnauthorized, remote.Status)
	assert.Equal(t, "token expired", remote.Body)
}

func TestSheetsMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/spreadsheets/sheet-9", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("fields"), "sheets(properties")
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-9","properties":{"title":"Lab runs","locale":"en_US"},
			"sheets":[{"properties":{"sheetId":0,"title":"Chat","index":0}},{"properties":{"sheetId":7,"title":"Votes","index":1}}]}`)
	}))
	defer srv.Close()

	meta, err := NewSheetsClient(srv.Client(), srv.URL).Metadata(context.Background(), "sheet-9")
	require.NoError(t, err)
	assert.Equal(t, "Lab runs", meta.Title)
	assert.Equal(t, []SheetTab{{SheetID: 0, Title: "Chat", Index: 0}, {SheetID: 7, Title: "Votes", Index: 1}}, meta.Sheets)

	_, err = NewSheetsClient(srv.Client(), srv.URL).Metadata(context.Background(), " ")
	assert.Error(t, err)
}
