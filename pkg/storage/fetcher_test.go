package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	got  string
	data []byte
}

func (s *stubFetcher) Fetch(_ context.Context, uri string) ([]byte, error) {
	s.got = uri
	return s.data, nil
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 0)

	data, err := f.Fetch(context.Background(), srv.URL+"/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.pdf")
	assert.Error(t, err)
}

func TestHTTPFetcher_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chunked.pdf" {
			// 不声明 Content-Length
			w.(http.Flusher).Flush()
		}
		_, _ = w.Write([]byte("%PDF-1.4 0123456789"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 8)
	for _, p := range []string{"/declared.pdf", "/chunked.pdf"} {
		_, err := f.Fetch(context.Background(), srv.URL+p)
		assert.ErrorIs(t, err, ErrTooLarge, p)
	}

	data, err := NewHTTPFetcher(srv.Client(), 19).Fetch(context.Background(), srv.URL+"/declared.pdf")
	require.NoError(t, err)
	assert.Len(t, data, 19)
}

func TestRouter_Dispatch(t *testing.T) {
	objects := &stubFetcher{data: []byte("object")}
	web := &stubFetcher{data: []byte("web")}
	r := NewRouter(objects, web)

	data, err := r.Fetch(context.Background(), "users/u1/files/f1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "object", string(data))
	assert.Equal(t, "users/u1/files/f1/a.pdf", objects.got)

	data, err = r.Fetch(context.Background(), "https://example.com/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "web", string(data))

	_, err = NewRouter(nil, web).Fetch(context.Background(), "users/u1/a.pdf")
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	name := ObjectName("u1", "f1", "report.pdf")
	assert.Equal(t, "users/u1/files/f1/report.pdf", name)
	assert.True(t, OwnedBy(name, "u1"))
}

func TestOwnedBy(t *testing.T) {
	cases := []struct {
		key, user string
		want      bool
	}{
		{"users/bob/files/f1/a.pdf", "bob", true},
		{"users/alice/files/f1/a.pdf", "bob", false},
		{"users/bobby/files/f1/a.pdf", "bob", false},
		{"users/bob/../alice/files/f1/a.pdf", "bob", false},
		{"users/bob//files/a.pdf", "bob", false},
		{"/users/bob/files/a.pdf", "bob", false},
		{"s3://bucket/users/bob/files/a.pdf", "bob", false},
		{"users/bob/", "bob", false},
		{"users/a/b/files/x.pdf", "a/b", false},
		{"users//files/x.pdf", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, OwnedBy(tc.key, tc.user), tc.key)
	}
}
