package api

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"photogallery/src/app"
)

type captured struct {
	method string
	path   string
	query  string
	auth   string
	reqID  string
	ctype  string
	body   string
}

// fakeBackend answers every request with status and body and records
// what it received.
func fakeBackend(t *testing.T, status int, body string) (*Client, *captured) {
	t.Helper()
	srv, got := newBackend(t, status, body)
	log, _ := test.NewNullLogger()
	return NewClient(Config{BaseURL: srv.URL + "/", ChatURL: srv.URL}, log), got
}

func newBackend(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	got := &captured{}
	router := gin.New()
	router.NoRoute(func(c *gin.Context) {
		raw, _ := io.ReadAll(c.Request.Body)
		*got = captured{
			method: c.Request.Method,
			path:   c.Request.URL.Path,
			query:  c.Request.URL.RawQuery,
			auth:   c.GetHeader("Authorization"),
			reqID:  c.GetHeader(requestIDHeader),
			ctype:  c.GetHeader("Content-Type"),
			body:   string(raw),
		}
		c.Data(status, "application/json", []byte(body))
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, got
}

func TestClientRequests(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		label  string
		call   func(c *Client) error
		method string
		path   string
		query  string
		auth   string
		body   string
		resp   string
	}{
		{
			label:  "create album",
			call:   func(c *Client) error { _, err := c.CreateAlbum(ctx, "tok", "Trips"); return err },
			method: http.MethodPost, path: "/albums", auth: "Bearer tok",
			body: `{"name":"Trips"}`,
		},
		{
			label:  "delete album escapes the id",
			call:   func(c *Client) error { return c.DeleteAlbum(ctx, "tok", "a/1") },
			method: http.MethodDelete, path: "/albums/a/1", auth: "Bearer tok",
		},
		{
			label: "upload url with album",
			call: func(c *Client) error {
				_, err := c.GenerateUploadURL(ctx, "tok", "cat.png", "a1")
				return err
			},
			method: http.MethodGet, path: "/upload-url", query: "albumId=a1&fileName=cat.png", auth: "Bearer tok",
		},
		{
			label: "analyze omits empty fields",
			call: func(c *Client) error {
				return c.AnalyzePhoto(ctx, "tok", app.AnalyzeRequest{PhotoKey: "photo/k.png", Description: "My cat"})
			},
			method: http.MethodPost, path: "/analyze", auth: "Bearer tok",
			body: `{"photo":"photo/k.png","description":"My cat"}`,
		},
		{
			label:  "labels normalizes the key",
			call:   func(c *Client) error { _, err := c.GetLabels(ctx, "tok", "k.png"); return err },
			method: http.MethodGet, path: "/labels", query: "photo=photo%2Fk.png", auth: "Bearer tok",
		},
		{
			label:  "photos of an album",
			call:   func(c *Client) error { _, err := c.ListPhotos(ctx, "tok", "a1"); return err },
			method: http.MethodGet, path: "/photos", query: "albumId=a1", auth: "Bearer tok",
			resp: "[]",
		},
		{
			label:  "delete photo normalizes the key",
			call:   func(c *Client) error { return c.DeletePhoto(ctx, "tok", "abc123") },
			method: http.MethodDelete, path: "/photos", auth: "Bearer tok",
			body: `{"photo":"photo/abc123"}`,
		},
		{
			label: "favorite sends the negated state",
			call: func(c *Client) error {
				_, err := c.ToggleFavorite(ctx, "tok", "abc123", false)
				return err
			},
			method: http.MethodPost, path: "/favorite", auth: "Bearer tok",
			body: `{"isFavorite":true,"photo":"photo/abc123"}`,
		},
		{
			label:  "profile photo uses the raw token",
			call:   func(c *Client) error { _, err := c.GetProfilePhoto(ctx, "tok"); return err },
			method: http.MethodGet, path: "/get-profile-photo", auth: "tok",
		},
		{
			label:  "profile upload sends base64",
			call:   func(c *Client) error { return c.UploadProfilePhoto(ctx, "tok", []byte("img")) },
			method: http.MethodPost, path: "/upload-profile-photo", auth: "tok",
			body: `{"base64":"` + base64.StdEncoding.EncodeToString([]byte("img")) + `"}`,
		},
		{
			label: "chat sends history then the question",
			call: func(c *Client) error {
				_, err := c.AskChatBot(ctx, "tok", "how?", []app.ChatMessage{{Role: app.RoleBot, Text: "hi"}})
				return err
			},
			method: http.MethodPost, path: "/chatbot", auth: "Bearer tok",
			body: `{"messages":[{"role":"bot","text":"hi"},{"role":"user","text":"how?"}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			resp := tt.resp
			if resp == "" {
				resp = `{"upload_url":"u","photo_key":"k"}`
			}
			c, got := fakeBackend(t, http.StatusOK, resp)
			require.NoError(t, tt.call(c))
			assert.Equal(t, tt.method, got.method)
			assert.Equal(t, tt.path, got.path)
			assert.Equal(t, tt.query, got.query)
			assert.Equal(t, tt.auth, got.auth)
			assert.NotEmpty(t, got.reqID)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, got.body)
			}
		})
	}
}

func TestPutObjectHasNoToken(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, "")
	log, _ := test.NewNullLogger()
	c := NewClient(Config{BaseURL: "http://api.invalid"}, log)

	err := c.PutObject(context.Background(), srv.URL+"/bucket/photo/k.png?X-Amz-Signature=abc", "image/png", []byte("bytes"))
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/bucket/photo/k.png", got.path)
	assert.Empty(t, got.auth)
	assert.Equal(t, "image/png", got.ctype)
	assert.Equal(t, "bytes", got.body)
}

func TestListAlbumsShapes(t *testing.T) {
	want := []app.Album{{ID: "a1", Name: "Trips"}}
	for label, body := range map[string]string{
		"array":  `[{"albumId":"a1","name":"Trips"}]`,
		"object": `{"albums":[{"albumId":"a1","name":"Trips"}]}`,
	} {
		t.Run(label, func(t *testing.T) {
			c, _ := fakeBackend(t, http.StatusOK, body)
			albums, err := c.ListAlbums(context.Background(), "tok")
			require.NoError(t, err)
			assert.Equal(t, want, albums)
		})
	}
}

func TestListPhotosFillsDefaults(t *testing.T) {
	c, _ := fakeBackend(t, http.StatusOK, `[
		{"photo":"photo/a.jpg","labels":["Cat"],"albumId":"a1","uploadedAt":"2024-03-01T10:00:00Z","download_url":"https://x/a","isFavorite":true},
		{"photo":"photo/b.jpg","albumId":"","uploadedAt":"2024-03-02 08:30:00"},
		{"photo":"photo/c.jpg","uploadedAt":"not a date"}
	]`)

	photos, err := c.ListPhotos(context.Background(), "tok", "")
	require.NoError(t, err)

	want := []app.Photo{
		{
			Key: "photo/a.jpg", Labels: []string{"Cat"}, AlbumID: null.StringFrom("a1"),
			UploadedAt:  null.TimeFrom(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)),
			DownloadURL: "https://x/a", IsFavorite: true,
		},
		{
			Key: "photo/b.jpg", Labels: []string{},
			UploadedAt: null.TimeFrom(time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)),
		},
		{Key: "photo/c.jpg", Labels: []string{}},
	}
	if diff := cmp.Diff(want, photos); diff != "" {
		t.Errorf("ListPhotos mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleFavoriteResult(t *testing.T) {
	c, _ := fakeBackend(t, http.StatusOK, `{"message":"ok","isFavorite":false}`)
	fav, err := c.ToggleFavorite(context.Background(), "tok", "photo/a", false)
	require.NoError(t, err)
	assert.False(t, fav, "the stored value wins over the requested one")

	c, _ = fakeBackend(t, http.StatusOK, `{"message":"ok"}`)
	fav, err = c.ToggleFavorite(context.Background(), "tok", "photo/a", false)
	require.NoError(t, err)
	assert.True(t, fav)
}

func TestRequestErrors(t *testing.T) {
	tests := []struct {
		label  string
		status int
		kind   app.Kind
		target error
	}{
		{"unauthorized", http.StatusUnauthorized, app.KindAuth, app.ErrUnauthenticated},
		{"forbidden", http.StatusForbidden, app.KindAuth, app.ErrUnauthenticated},
		{"not found", http.StatusNotFound, app.KindNetwork, app.ErrNotFound},
		{"server error", http.StatusInternalServerError, app.KindNetwork, nil},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			c, _ := fakeBackend(t, tt.status, `{"message":"nope"}`)
			_, err := c.GetLabels(context.Background(), "tok", "photo/a")
			require.Error(t, err)

			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.status, reqErr.Status)
			assert.Equal(t, "get labels", reqErr.Op)
			assert.Contains(t, reqErr.Body, "nope")
			assert.Equal(t, tt.kind, app.KindOf(err))
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target))
			}
		})
	}
}

func TestUnreachableBackendIsNetworkError(t *testing.T) {
	log, _ := test.NewNullLogger()
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, log)

	_, err := c.ListAlbums(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, app.KindNetwork, app.KindOf(err))
}
