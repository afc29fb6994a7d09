package app

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// mockAPI implements every remote interface of the package.
type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ListAlbums(ctx context.Context, token string) ([]Album, error) {
	args := m.Called(ctx, token)
	albums, _ := args.Get(0).([]Album)
	return albums, args.Error(1)
}

func (m *mockAPI) ListPhotos(ctx context.Context, token, albumID string) ([]Photo, error) {
	args := m.Called(ctx, token, albumID)
	photos, _ := args.Get(0).([]Photo)
	return photos, args.Error(1)
}

func (m *mockAPI) CreateAlbum(ctx context.Context, token, name string) (string, error) {
	args := m.Called(ctx, token, name)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) DeleteAlbum(ctx context.Context, token, albumID string) error {
	return m.Called(ctx, token, albumID).Error(0)
}

func (m *mockAPI) DeletePhoto(ctx context.Context, token, key string) error {
	return m.Called(ctx, token, key).Error(0)
}

func (m *mockAPI) ToggleFavorite(ctx context.Context, token, key string, current bool) (bool, error) {
	args := m.Called(ctx, token, key, current)
	return args.Bool(0), args.Error(1)
}

func (m *mockAPI) GenerateUploadURL(ctx context.Context, token, fileName, albumID string) (UploadTarget, error) {
	args := m.Called(ctx, token, fileName, albumID)
	return args.Get(0).(UploadTarget), args.Error(1)
}

func (m *mockAPI) PutObject(ctx context.Context, uploadURL, contentType string, body []byte) error {
	return m.Called(ctx, uploadURL, contentType, body).Error(0)
}

func (m *mockAPI) AnalyzePhoto(ctx context.Context, token string, req AnalyzeRequest) error {
	return m.Called(ctx, token, req).Error(0)
}

func (m *mockAPI) GetLabels(ctx context.Context, token, key string) ([]string, error) {
	args := m.Called(ctx, token, key)
	labels, _ := args.Get(0).([]string)
	return labels, args.Error(1)
}

func (m *mockAPI) AskChatBot(ctx context.Context, token, input string, history []ChatMessage) (string, error) {
	args := m.Called(ctx, token, input, history)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) GetProfilePhoto(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) UploadProfilePhoto(ctx context.Context, token string, image []byte) error {
	return m.Called(ctx, token, image).Error(0)
}

type note struct {
	message string
	success bool
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (r *recordingNotifier) Notify(message string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note{message, success})
}

func (r *recordingNotifier) last() note {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return note{}
	}
	return r.notes[len(r.notes)-1]
}

// memStore is a map backed StateStore.
type memStore map[string]string

func (m memStore) Get(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memStore) Set(key, value string) error {
	m[key] = value
	return nil
}

func (m memStore) Delete(key string) error {
	delete(m, key)
	return nil
}

func (m memStore) Clear() error {
	for k := range m {
		delete(m, k)
	}
	return nil
}
