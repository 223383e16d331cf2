package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngld/henge/pkg/expected"
)

func newServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/file.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("zipdata"))
	})
	mux.HandleFunc("/meta.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "lib", "artifacts": [{"id": "lib-win32", "platform": "win32", "path": "lib-win32.zip"}]}`))
	})
	mux.HandleFunc("/broken.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": `))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	srv := newServer(t)
	buf := &bytes.Buffer{}

	n, err := New().Download(context.Background(), srv.URL+"/file.zip", buf)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.Equal(t, "zipdata", buf.String())
}

func TestDownloadReportsStatusCode(t *testing.T) {
	srv := newServer(t)

	_, err := New().Download(context.Background(), srv.URL+"/missing.zip", &bytes.Buffer{})
	require.Error(t, err)

	statusErr, ok := err.(*StatusError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.True(t, expected.Is(err))
}

func TestGetJSON(t *testing.T) {
	srv := newServer(t)

	var doc struct {
		Name      string
		Artifacts []struct {
			ID       string
			Platform string
			Path     string
		}
	}
	require.NoError(t, New().GetJSON(context.Background(), srv.URL+"/meta.json", &doc))
	require.Equal(t, "lib", doc.Name)
	require.Len(t, doc.Artifacts, 1)
	require.Equal(t, "lib-win32.zip", doc.Artifacts[0].Path)

	err := New().GetJSON(context.Background(), srv.URL+"/broken.json", &doc)
	require.Error(t, err)
	require.True(t, expected.Is(err))
}
