package handler_test

import (
	"bytes"
	"checkin/backend/internal/api/handler"
	"checkin/backend/internal/chathub"
	"checkin/backend/internal/history"
	"checkin/backend/internal/models"
	"checkin/backend/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockStorage) GetChatHistory(ctx context.Context, room string, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, room, limit)
	msgs, _ := args.Get(0).([]models.ChatMessage)
	return msgs, args.Error(1)
}

func (m *MockStorage) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]models.RoomSummary)
	return rooms, args.Error(1)
}

func (m *MockStorage) SaveAttachment(ctx context.Context, a *models.Attachment) error {
	return m.Called(ctx, a).Error(0)
}

type testServer struct {
	router    *gin.Engine
	store     storage.Storage
	uploadDir string
}

func newTestServer(t *testing.T, store storage.Storage, maxUpload int64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hist := history.NewService(store)
	hub := chathub.NewManagerService(store, hist, chathub.WithDefaultRoom("general"))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		hub.Wait()
	})

	dir := t.TempDir()
	h := handler.NewHandler(hub, store, hist, handler.UploadOptions{Dir: dir, MaxBytes: maxUpload})
	router := gin.New()
	h.RegisterRoutes(router)
	return &testServer{router: router, store: store, uploadDir: dir}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func seed(t *testing.T, store storage.MessageStore, room string, bodies ...string) {
	t.Helper()
	for _, body := range bodies {
		require.NoError(t, store.SaveMessage(context.Background(), &models.ChatMessage{Room: room, Author: "alice", Body: body}))
	}
}

func TestGetMessages(t *testing.T) {
	store := storage.NewMemoryStore()
	srv := newTestServer(t, store, 1<<20)
	seed(t, store, "general", "one", "two", "three")
	seed(t, store, "random", "elsewhere")

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBodies []string
	}{
		{"default room", "", http.StatusOK, []string{"one", "two", "three"}},
		{"explicit room", "?room=random", http.StatusOK, []string{"elsewhere"}},
		{"limit keeps newest", "?room=general&limit=2", http.StatusOK, []string{"two", "three"}},
		{"zero limit is unlimited", "?limit=0", http.StatusOK, []string{"one", "two", "three"}},
		{"empty room", "?room=quiet", http.StatusOK, []string{}},
		{"bad limit", "?limit=ten", http.StatusBadRequest, nil},
		{"negative limit", "?limit=-1", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(httptest.NewRequest(http.MethodGet, "/messages"+tt.query, nil))
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBodies == nil {
				return
			}

			var msgs []models.ChatMessage
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
			got := make([]string, len(msgs))
			for i, m := range msgs {
				got[i] = m.Body
			}
			assert.Equal(t, tt.wantBodies, got)
		})
	}
}

func TestGetMessages_EmptyRoomIsJSONArray(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStore(), 1<<20)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/messages?room=quiet", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetMessages_StoreFailure(t *testing.T) {
	store := new(MockStorage)
	store.On("GetChatHistory", mock.Anything, "general", 0).Return(nil, errors.New("connection reset"))
	srv := newTestServer(t, store, 1<<20)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/messages", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"failed to load history"}`, w.Body.String())
}

func TestListRooms(t *testing.T) {
	store := storage.NewMemoryStore()
	srv := newTestServer(t, store, 1<<20)
	seed(t, store, "general", "a", "b")
	time.Sleep(2 * time.Millisecond)
	seed(t, store, "random", "c")

	w := srv.do(httptest.NewRequest(http.MethodGet, "/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var rooms []models.RoomSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "random", rooms[0].Room)
	assert.Equal(t, int64(1), rooms[0].MessageCount)
	assert.Equal(t, "general", rooms[1].Room)
	assert.Equal(t, int64(2), rooms[1].MessageCount)
}

func TestListRooms_StoreFailure(t *testing.T) {
	store := new(MockStorage)
	store.On("ListRooms", mock.Anything).Return(nil, errors.New("boom"))
	srv := newTestServer(t, store, 1<<20)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func multipartRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAttachment(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStore(), 1<<20)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

	w := srv.do(multipartRequest(t, "file", "../../street map.png", png))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got models.Attachment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	// multipart hands the handler only the base name.
	assert.Equal(t, "street map.png", got.FileName)
	assert.Equal(t, "image/png", got.ContentType)
	assert.Equal(t, int64(len(png)), got.Size)
	require.True(t, strings.HasPrefix(got.Path, "/uploads/"))
	assert.True(t, strings.HasSuffix(got.Path, "-street_map.png"))

	stored, err := os.ReadFile(filepath.Join(srv.uploadDir, strings.TrimPrefix(got.Path, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, png, stored)

	// The returned path is served back.
	w = srv.do(httptest.NewRequest(http.MethodGet, got.Path, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, png, w.Body.Bytes())
}

func TestUploadAttachment_TooLarge(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStore(), 64)

	w := srv.do(multipartRequest(t, "file", "big.bin", bytes.Repeat([]byte("x"), 1024)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	entries, err := os.ReadDir(srv.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadAttachment_MissingFile(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStore(), 1<<20)

	w := srv.do(multipartRequest(t, "document", "note.txt", []byte("hi")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadAttachment_RecordFailureRemovesFile(t *testing.T) {
	store := new(MockStorage)
	store.On("SaveAttachment", mock.Anything, mock.AnythingOfType("*models.Attachment")).Return(errors.New("db down"))
	srv := newTestServer(t, store, 1<<20)

	w := srv.do(multipartRequest(t, "file", "note.txt", []byte("hi")))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	entries, err := os.ReadDir(srv.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStore(), 1<<20)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
