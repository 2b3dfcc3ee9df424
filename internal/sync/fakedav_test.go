package sync

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/store"
	"github.com/Ruszero01/ecopaste-sync/internal/webdav"
)

// fakeDAV is an in-memory WebDAV server good enough for the verbs the
// client issues: PROPFIND, MKCOL, PUT, GET, DELETE, HEAD.
type fakeDAV struct {
	mu    stdsync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	// writes counts mutating requests (PUT, MKCOL, DELETE).
	writes int

	srv *httptest.Server
}

func newFakeDAV(t *testing.T) *fakeDAV {
	t.Helper()

	f := &fakeDAV{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}

	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeDAV) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := strings.TrimSuffix(r.URL.Path, "/")
	if p == "" {
		p = "/"
	}

	switch r.Method {
	case "PROPFIND":
		if _, ok := f.files[p]; ok || f.dirs[p] || p == "/" {
			w.WriteHeader(http.StatusMultiStatus)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}

	case "MKCOL":
		f.writes++
		f.dirs[p] = true
		w.WriteHeader(http.StatusCreated)

	case http.MethodPut:
		f.writes++
		data, _ := io.ReadAll(r.Body)
		f.files[p] = data
		w.WriteHeader(http.StatusCreated)

	case http.MethodGet:
		data, ok := f.files[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		_, _ = w.Write(data)

	case http.MethodDelete:
		f.writes++
		if _, ok := f.files[p]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		delete(f.files, p)
		w.WriteHeader(http.StatusNoContent)

	case http.MethodHead:
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// get returns a stored file's bytes by sync-root-relative path.
func (f *fakeDAV) get(rel string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.files["/sync/"+strings.Trim(rel, "/")]

	return data, ok
}

// put stores a file by sync-root-relative path.
func (f *fakeDAV) put(rel string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files["/sync/"+strings.Trim(rel, "/")] = data
}

// writeCount returns the number of mutating requests seen so far.
func (f *fakeDAV) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.writes
}

// testRig bundles a store, config document, fake server and engine.
type testRig struct {
	store  *store.Store
	doc    *config.Document
	dav    *fakeDAV
	engine *Engine
}

// newTestRig assembles a full engine against a fresh store and fake
// server. configJSON seeds the config document ("" means defaults).
func newTestRig(t *testing.T, configJSON string) *testRig {
	t.Helper()

	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "EcoPaste.db"), dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	doc := config.NewDocument(filepath.Join(dir, ".store.json"), nil)
	if configJSON != "" {
		require.NoError(t, doc.Replace(configJSON))
	}

	dav := newFakeDAV(t)

	client := newFastClient(dav)
	engine := NewEngine(st, client, doc, nil, nil)

	return &testRig{store: st, doc: doc, dav: dav, engine: engine}
}

// newFastClient builds a webdav.Client against the fake server with a short
// request timeout. It keeps the client's real backoff; the fake never answers
// with a retryable status, so no retry delay occurs.
func newFastClient(dav *fakeDAV) *webdav.Client {
	return webdav.NewClient(webdav.Config{
		URL:     dav.srv.URL,
		Path:    "sync",
		Timeout: 5 * time.Second,
	}, nil)
}
