package jobs

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"profilephoto/internal/apperr"
	"profilephoto/internal/events"
	"profilephoto/internal/models"
)

// recordStore is an in-memory stand-in for the profiles table. Units of
// work stage updates and only apply them on commit.
type recordStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]models.Profile
	levels   []pgx.TxIsoLevel

	// commitErr, when set, decides the commit outcome per profile.
	commitErr func(id uuid.UUID) error
	// commitLands makes a failing commit apply its changes anyway, as a
	// commit whose acknowledgement was lost.
	commitLands bool
	// getErr, when set, fails GetProfile for a profile.
	getErr func(id uuid.UUID) error
}

func newRecordStore() *recordStore {
	return &recordStore{profiles: make(map[uuid.UUID]models.Profile)}
}

func (r *recordStore) add(t *testing.T, tempPicture string, createdAt time.Time) models.Profile {
	t.Helper()
	p := models.Profile{
		ID:        uuid.New(),
		FirstName: "Ada",
		LastName:  "Lovelace",
		CreatedAt: createdAt,
	}
	if tempPicture != "" {
		p.SetTempPicture(tempPicture)
	}
	r.mu.Lock()
	r.profiles[p.ID] = p
	r.mu.Unlock()
	return p
}

func (r *recordStore) get(id uuid.UUID) models.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[id]
}

func (r *recordStore) SelectPending(_ context.Context, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []models.Profile
	for _, p := range r.profiles {
		if p.Pending() {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	ids := make([]uuid.UUID, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (r *recordStore) GetByID(_ context.Context, id uuid.UUID) (models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return models.Profile{}, apperr.E(apperr.KindNotFound, "profiles.get", errors.New("no rows"))
	}
	return p, nil
}

func (r *recordStore) newUnit() UnitOfWork {
	return &fakeUnit{store: r}
}

type fakeUnit struct {
	store  *recordStore
	active bool
	staged map[uuid.UUID]models.Profile
}

func (u *fakeUnit) Begin(_ context.Context, level pgx.TxIsoLevel) error {
	if u.active {
		return errors.New("nested unit of work")
	}
	u.store.mu.Lock()
	u.store.levels = append(u.store.levels, level)
	u.store.mu.Unlock()
	u.active = true
	u.staged = make(map[uuid.UUID]models.Profile)
	return nil
}

func (u *fakeUnit) GetProfile(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	if u.store.getErr != nil {
		if err := u.store.getErr(id); err != nil {
			return models.Profile{}, err
		}
	}
	if p, ok := u.staged[id]; ok {
		return p, nil
	}
	return u.store.GetByID(ctx, id)
}

func (u *fakeUnit) UpdateProfile(_ context.Context, p models.Profile) error {
	if !u.active {
		return errors.New("no transaction")
	}
	u.staged[p.ID] = p
	return nil
}

func (u *fakeUnit) Commit(context.Context) error {
	if !u.active {
		return errors.New("no transaction")
	}
	u.active = false
	if u.store.commitErr != nil {
		for id := range u.staged {
			if err := u.store.commitErr(id); err != nil {
				if u.store.commitLands {
					u.apply()
				}
				u.staged = nil
				return err
			}
		}
	}
	u.apply()
	u.staged = nil
	return nil
}

func (u *fakeUnit) apply() {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for id, p := range u.staged {
		u.store.profiles[id] = p
	}
}

func (u *fakeUnit) Rollback(context.Context) error {
	u.active = false
	u.staged = nil
	return nil
}

func serializationFailure() error {
	return apperr.E(apperr.KindTransientConflict, "tx.commit", &pgconn.PgError{Code: "40001"})
}

// blobStore is an in-memory object store keyed by bucket and name.
type blobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	buckets map[string]bool

	getErr    func(name string) error
	putErr    func(name string) error
	deleteErr func(name string) error
	onPut     func(name string)
	deletes   []string
}

func newBlobStore() *blobStore {
	return &blobStore{
		objects: make(map[string][]byte),
		buckets: make(map[string]bool),
	}
}

func key(bucket, name string) string { return bucket + "|" + name }

func (b *blobStore) seed(bucket, name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets[bucket] = true
	b.objects[key(bucket, name)] = data
}

func (b *blobStore) has(bucket, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key(bucket, name)]
	return ok
}

func (b *blobStore) data(bucket, name string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[key(bucket, name)]
}

func (b *blobStore) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func (b *blobStore) EnsureBucket(_ context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets[bucket] = true
	return nil
}

func (b *blobStore) GetObject(_ context.Context, bucket, name string) ([]byte, error) {
	if b.getErr != nil {
		if err := b.getErr(name); err != nil {
			return nil, err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key(bucket, name)]
	if !ok {
		return nil, apperr.E(apperr.KindNotFound, "storage.get_object", errors.New("NoSuchKey"))
	}
	return data, nil
}

func (b *blobStore) PutObject(_ context.Context, bucket, name string, data []byte, _ string) error {
	if b.putErr != nil {
		if err := b.putErr(name); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.objects[key(bucket, name)] = data
	b.mu.Unlock()
	if b.onPut != nil {
		b.onPut(name)
	}
	return nil
}

func (b *blobStore) DeleteObject(_ context.Context, bucket, name string) error {
	if b.deleteErr != nil {
		if err := b.deleteErr(name); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, name)
	if _, ok := b.objects[key(bucket, name)]; !ok {
		return apperr.E(apperr.KindNotFound, "storage.delete_object", errors.New("NoSuchKey"))
	}
	delete(b.objects, key(bucket, name))
	return nil
}

func (b *blobStore) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for k := range b.objects {
		name, ok := strings.CutPrefix(k, bucket+"|")
		if ok && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.ThumbnailReady
	err    error
}

func (n *recordingNotifier) ThumbnailReady(_ context.Context, evt events.ThumbnailReady) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.err
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type erroringReader struct{ err error }

func (r erroringReader) GetByID(context.Context, uuid.UUID) (models.Profile, error) {
	return models.Profile{}, r.err
}
