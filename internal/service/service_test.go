package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilephoto/internal/apperr"
	"profilephoto/internal/models"
)

type memProfiles struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]models.Profile
	setErr   error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: make(map[uuid.UUID]models.Profile)}
}

func (m *memProfiles) Create(_ context.Context, p models.Profile) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return p, nil
}

func (m *memProfiles) GetByID(_ context.Context, id uuid.UUID) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return models.Profile{}, apperr.E(apperr.KindNotFound, "profiles.get", errors.New("no rows"))
	}
	return p, nil
}

func (m *memProfiles) SetTempPicture(_ context.Context, id uuid.UUID, name string) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return models.Profile{}, m.setErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return models.Profile{}, apperr.E(apperr.KindNotFound, "profiles.set_temp_picture", errors.New("no rows"))
	}
	p.SetTempPicture(name)
	m.profiles[id] = p
	return p, nil
}

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memObjects) EnsureBucket(context.Context, string) error { return nil }

func (m *memObjects) PutObject(_ context.Context, _, name string, data []byte, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[name] = data
	m.types[name] = contentType
	return nil
}

func (m *memObjects) DeleteObject(_ context.Context, _, name string) error {
	if _, ok := m.objects[name]; !ok {
		return apperr.E(apperr.KindNotFound, "storage.delete_object", errors.New("NoSuchKey"))
	}
	delete(m.objects, name)
	return nil
}

type recordingKicker struct {
	kicks []string
	err   error
}

func (k *recordingKicker) KickThumbnail(_ context.Context, id string) error {
	k.kicks = append(k.kicks, id)
	return k.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func seedProfile(t *testing.T, profiles *memProfiles) models.Profile {
	t.Helper()
	p, err := NewProfileService(profiles, zerolog.Nop()).Create(context.Background(), CreateProfileInput{
		FirstName: "Grace",
		LastName:  "Hopper",
	})
	require.NoError(t, err)
	return p
}

func TestProfileService_Create(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateProfileInput
		wantErr bool
	}{
		{name: "minimal", input: CreateProfileInput{FirstName: "Ada", LastName: "Lovelace"}},
		{name: "with email", input: CreateProfileInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}},
		{name: "missing last name", input: CreateProfileInput{FirstName: "Ada", LastName: "  "}, wantErr: true},
		{name: "malformed email", input: CreateProfileInput{FirstName: "Ada", LastName: "Lovelace", Email: "nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewProfileService(newMemProfiles(), zerolog.Nop())
			p, err := svc.Create(context.Background(), tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidProfile)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, p.ID)
			assert.False(t, p.HasThumbnail)
			assert.Nil(t, p.TempPictureName)

			got, err := svc.Get(context.Background(), p.ID)
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestUploadService_Upload(t *testing.T) {
	profiles, objects, kicker := newMemProfiles(), newMemObjects(), &recordingKicker{}
	p := seedProfile(t, profiles)
	svc := NewUploadService(profiles, objects, kicker, "profiles", 1<<20, zerolog.Nop())

	updated, err := svc.Upload(context.Background(), UploadInput{
		ProfileID: p.ID,
		File:      bytes.NewReader(pngBytes(t)),
		Header:    http.Header{"Content-Type": []string{"image/png"}},
	})
	require.NoError(t, err)

	require.NotNil(t, updated.TempPictureName)
	name := *updated.TempPictureName
	assert.True(t, strings.HasPrefix(name, p.ID.String()+"/uploads/"))
	assert.True(t, strings.HasSuffix(name, ".png"))
	assert.True(t, updated.Pending())
	assert.Equal(t, "image/png", objects.types[name])
	assert.Equal(t, []string{p.ID.String()}, kicker.kicks)
}

func TestUploadService_ReplacesPendingUploadAndResetsThumbnail(t *testing.T) {
	profiles, objects := newMemProfiles(), newMemObjects()
	p := seedProfile(t, profiles)
	svc := NewUploadService(profiles, objects, nil, "profiles", 0, zerolog.Nop())

	first, err := svc.Upload(context.Background(), UploadInput{ProfileID: p.ID, File: bytes.NewReader(pngBytes(t))})
	require.NoError(t, err)

	// Simulate a committed thumbnail, then a second, still pending upload.
	done := first
	done.MarkThumbnail(p.ID.String() + "/thumbnails/a.png")
	profiles.profiles[p.ID] = done

	second, err := svc.Upload(context.Background(), UploadInput{ProfileID: p.ID, File: bytes.NewReader(pngBytes(t))})
	require.NoError(t, err)
	assert.False(t, second.HasThumbnail)
	assert.Nil(t, second.ThumbnailName)

	third, err := svc.Upload(context.Background(), UploadInput{ProfileID: p.ID, File: bytes.NewReader(pngBytes(t))})
	require.NoError(t, err)
	assert.NotContains(t, objects.objects, *second.TempPictureName, "superseded pending upload is removed")
	assert.Contains(t, objects.objects, *third.TempPictureName)
}

func TestUploadService_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    func(t *testing.T) []byte
		header  http.Header
		max     int64
		wantErr error
	}{
		{name: "empty", file: func(*testing.T) []byte { return nil }, wantErr: ErrEmptyFile},
		{name: "not an image", file: func(*testing.T) []byte { return []byte("hello world") }, wantErr: ErrUnsupportedType},
		{name: "svg", file: func(*testing.T) []byte { return []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`) }, wantErr: ErrUnsupportedType},
		{
			name:    "declared type mismatch",
			file:    pngBytes,
			header:  http.Header{"Content-Type": []string{"image/jpeg"}},
			wantErr: ErrUnsupportedType,
		},
		{name: "too large", file: pngBytes, max: 10, wantErr: ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles, objects := newMemProfiles(), newMemObjects()
			p := seedProfile(t, profiles)
			svc := NewUploadService(profiles, objects, nil, "profiles", tt.max, zerolog.Nop())

			_, err := svc.Upload(context.Background(), UploadInput{
				ProfileID: p.ID,
				File:      bytes.NewReader(tt.file(t)),
				Header:    tt.header,
			})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, objects.objects)
			assert.False(t, profiles.profiles[p.ID].Pending())
		})
	}
}

func TestUploadService_UnknownProfile(t *testing.T) {
	objects := newMemObjects()
	svc := NewUploadService(newMemProfiles(), objects, nil, "profiles", 0, zerolog.Nop())

	_, err := svc.Upload(context.Background(), UploadInput{ProfileID: uuid.New(), File: bytes.NewReader(pngBytes(t))})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, objects.objects)
}

func TestUploadService_RemovesBlobWhenRecordUpdateFails(t *testing.T) {
	profiles, objects, kicker := newMemProfiles(), newMemObjects(), &recordingKicker{}
	p := seedProfile(t, profiles)
	profiles.setErr = errors.New("connection reset")
	svc := NewUploadService(profiles, objects, kicker, "profiles", 0, zerolog.Nop())

	_, err := svc.Upload(context.Background(), UploadInput{ProfileID: p.ID, File: bytes.NewReader(pngBytes(t))})
	require.Error(t, err)
	assert.Empty(t, objects.objects)
	assert.Empty(t, kicker.kicks)
}

func TestUploadService_KickFailureDoesNotFailUpload(t *testing.T) {
	profiles, objects := newMemProfiles(), newMemObjects()
	p := seedProfile(t, profiles)
	kicker := &recordingKicker{err: errors.New("redis down")}
	svc := NewUploadService(profiles, objects, kicker, "profiles", 0, zerolog.Nop())

	updated, err := svc.Upload(context.Background(), UploadInput{ProfileID: p.ID, File: bytes.NewReader(pngBytes(t))})
	require.NoError(t, err)
	assert.True(t, updated.Pending())
}

func TestUploadService_StoreFailure(t *testing.T) {
	profiles, objects := newMemProfiles(), newMemObjects()
	objects.putErr = apperr.E(apperr.KindBlobStore, "storage.put_object", errors.New("timeout"))
	p := seedProfile(t, profiles)
	svc := NewUploadService(profiles, objects, nil, "profiles", 0, zerolog.Nop())

	_, err := svc.Upload(context.Background(), UploadInput{ProfileID: p.ID, File: bytes.NewReader(pngBytes(t))})
	assert.True(t, apperr.Is(err, apperr.KindBlobStore))
	assert.False(t, profiles.profiles[p.ID].Pending())
}
