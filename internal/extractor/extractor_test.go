package extractor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/s3zip/internal/metrics"
	"github.com/newthinker/s3zip/internal/response"
	"github.com/newthinker/s3zip/internal/storage"
	"github.com/newthinker/s3zip/internal/ziparchive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type member struct {
	name string
	body string
}

func buildArchive(t *testing.T, passphrase string, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := ziparchive.NewWriter(&buf, passphrase)
	for _, m := range members {
		if strings.HasSuffix(m.name, "/") {
			require.NoError(t, w.AddDir(m.name))
			continue
		}
		_, err := w.Add(m.name, strings.NewReader(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func setup(t *testing.T, key string, data []byte) (*storage.LocalFS, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocalFS(root)
	require.NoError(t, err)
	if data != nil {
		require.NoError(t, store.Upload(context.Background(), "src", key, bytes.NewReader(data)))
	}
	return store, root
}

func newTestExtractor(t *testing.T, store storage.ObjectStore) *Extractor {
	e := New(store, zaptest.NewLogger(t), metrics.NewRegistry())
	e.TempDir = t.TempDir()
	return e
}

func decode(t *testing.T, res response.Result) Body {
	t.Helper()
	var body Body
	require.NoError(t, res.Decode(&body))
	return body
}

// fakeClock advances by step on every upload.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

type tickingStore struct {
	storage.ObjectStore
	clock *fakeClock
}

func (s *tickingStore) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	s.clock.now = s.clock.now.Add(s.clock.step)
	return s.ObjectStore.Upload(ctx, bucket, key, r)
}

type failingUploadStore struct {
	storage.ObjectStore
	failKey string
}

func (s *failingUploadStore) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if key == s.failKey {
		return errors.New("upload refused")
	}
	return s.ObjectStore.Upload(ctx, bucket, key, r)
}

func TestRun_ExtractsAllMembers(t *testing.T) {
	data := buildArchive(t, "",
		member{"a.txt", "alpha"},
		member{"b/c.txt", "charlie"},
		member{"b/", ""},
	)
	store, root := setup(t, "in/data.zip", data)
	e := newTestExtractor(t, store)

	res := e.Run(context.Background(), Job{Bucket: "src", Key: "in/data.zip"})

	assert.Equal(t, 200, res.StatusCode)
	body := decode(t, res)
	assert.Equal(t, MsgComplete, body.Message)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 1, body.Skipped)
	assert.Equal(t, 2, body.Extracted)
	assert.Equal(t, 2, body.Uploaded)
	assert.Equal(t, 0, body.Failed)
	assert.Nil(t, body.Error)

	got, err := os.ReadFile(filepath.Join(root, "src", "in", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))
	got, err = os.ReadFile(filepath.Join(root, "src", "in", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "charlie", string(got))
}

func TestRun_DestinationOverrides(t *testing.T) {
	data := buildArchive(t, "", member{"a.txt", "alpha"})
	store, root := setup(t, "data.ZIP", data)
	e := newTestExtractor(t, store)

	res := e.Run(context.Background(), Job{
		Bucket:            "src",
		Key:               "data.ZIP",
		DestinationBucket: "dst",
		DestinationPrefix: "/out//",
	})

	require.Equal(t, 200, res.StatusCode)
	_, err := os.Stat(filepath.Join(root, "dst", "out", "a.txt"))
	assert.NoError(t, err)
}

func TestRun_RootLevelKey(t *testing.T) {
	data := buildArchive(t, "", member{"a.txt", "alpha"})
	store, root := setup(t, "data.zip", data)
	e := newTestExtractor(t, store)

	res := e.Run(context.Background(), Job{Bucket: "src", Key: "data.zip"})

	require.Equal(t, 200, res.StatusCode)
	_, err := os.Stat(filepath.Join(root, "src", "a.txt"))
	assert.NoError(t, err)
}

func TestRun_NotAZip(t *testing.T) {
	store, _ := setup(t, "in/data.tar", []byte("tar"))
	e := newTestExtractor(t, store)

	res := e.Run(context.Background(), Job{Bucket: "src", Key: "in/data.tar"})

	assert.Equal(t, 400, res.StatusCode)
	body := decode(t, res)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_AN_ARCHIVE", body.Error.Code)
	assert.Equal(t, 0, body.Total)
}

func TestRun_MissingFields(t *testing.T) {
	store, _ := setup(t, "", nil)
	e := newTestExtractor(t, store)

	res := e.Run(context.Background(), Job{Key: "a.zip"})

	assert.Equal(t, 400, res.StatusCode)
	assert.Equal(t, "CONFIG_MISSING", decode(t, res).Error.Code)
}

func TestRun_MissingObject(t *testing.T) {
	store, _ := setup(t, "", nil)
	e := newTestExtractor(t, store)

	res := e.Run(context.Background(), Job{Bucket: "src", Key: "in/absent.zip"})

	assert.Equal(t, 500, res.StatusCode)
	body := decode(t, res)
	require.NotNil(t, body.Error)
	assert.Equal(t, "DOWNLOAD_FAILED", body.Error.Code)
	assert.Equal(t, "NoSuchKey", body.Error.ProviderCode)
}

func TestRun_CorruptArchive(t *testing.T) {
	store, _ := setup(t, "in/data.zip", []byte("definitely not a zip"))
	e := newTestExtractor(t, store)

	res := e.Run(context.Background(), Job{Bucket: "src", Key: "in/data.zip"})

	assert.Equal(t, 400, res.StatusCode)
	assert.Equal(t, "INVALID_ARCHIVE", decode(t, res).Error.Code)
}

func TestRun_Passphrase(t *testing.T) {
	data := buildArchive(t, "s3cret",
		member{"a.txt", "alpha"},
		member{"b.txt", "bravo"},
	)

	tests := []struct {
		name       string
		password   string
		wantStatus int
		wantCount  int
	}{
		{"correct", "s3cret", 200, 2},
		{"wrong", "guess", 401, 0},
		{"missing", "", 401, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, root := setup(t, "in/secret.zip", data)
			e := newTestExtractor(t, store)

			res := e.Run(context.Background(), Job{Bucket: "src", Key: "in/secret.zip", Password: tt.password})

			assert.Equal(t, tt.wantStatus, res.StatusCode)
			body := decode(t, res)
			assert.Equal(t, tt.wantCount, body.Extracted)
			assert.Equal(t, tt.wantCount, body.Uploaded)
			if tt.wantStatus == 401 {
				assert.Equal(t, "INVALID_PASSPHRASE", body.Error.Code)
				_, err := os.Stat(filepath.Join(root, "src", "in", "a.txt"))
				assert.True(t, os.IsNotExist(err))
			}
		})
	}
}

func TestRun_DeadlineStopsEarly(t *testing.T) {
	data := buildArchive(t, "",
		member{"1.txt", "one"},
		member{"2.txt", "two"},
		member{"3.txt", "three"},
		member{"4.txt", "four"},
		member{"5.txt", "five"},
	)
	base, root := setup(t, "in/data.zip", data)

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step: 31 * time.Second}
	e := newTestExtractor(t, &tickingStore{ObjectStore: base, clock: clock})
	e.Now = clock.Now
	e.DefaultBudget = 150 * time.Second
	e.SafetyMargin = 60 * time.Second

	// The margin starts at +90s and each upload costs 31s, so three members fit.
	res := e.Run(context.Background(), Job{Bucket: "src", Key: "in/data.zip"})

	assert.Equal(t, 206, res.StatusCode)
	body := decode(t, res)
	assert.Equal(t, MsgDeadline, body.Message)
	assert.Equal(t, 5, body.Total)
	assert.Equal(t, 3, body.Extracted)
	assert.Equal(t, 3, body.Uploaded)
	assert.Equal(t, 0, body.Failed)

	_, err := os.Stat(filepath.Join(root, "src", "in", "3.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "src", "in", "4.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ContextDeadline(t *testing.T) {
	data := buildArchive(t, "", member{"a.txt", "alpha"})
	store, _ := setup(t, "in/data.zip", data)
	e := newTestExtractor(t, store)

	// Less time left than the safety margin: nothing is reached.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res := e.Run(ctx, Job{Bucket: "src", Key: "in/data.zip"})

	assert.Equal(t, 206, res.StatusCode)
	body := decode(t, res)
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, 0, body.Extracted)
}

func TestRun_FailedUploadCounted(t *testing.T) {
	data := buildArchive(t, "",
		member{"a.txt", "alpha"},
		member{"b.txt", "bravo"},
	)
	base, _ := setup(t, "in/data.zip", data)
	e := newTestExtractor(t, &failingUploadStore{ObjectStore: base, failKey: "in/a.txt"})

	res := e.Run(context.Background(), Job{Bucket: "src", Key: "in/data.zip"})

	assert.Equal(t, 206, res.StatusCode)
	body := decode(t, res)
	assert.Equal(t, MsgFailedMembers, body.Message)
	assert.Equal(t, 1, body.Failed)
	assert.Equal(t, 1, body.Extracted)
	assert.Equal(t, 1, body.Uploaded)
	assert.LessOrEqual(t, body.Extracted+body.Skipped+body.Failed, body.Total)
}

type panickingStore struct {
	storage.ObjectStore
}

func (panickingStore) Download(context.Context, string, string, io.WriterAt) (int64, error) {
	panic("boom")
}

func TestRun_RecoversPanic(t *testing.T) {
	e := newTestExtractor(t, panickingStore{})

	res := e.Run(context.Background(), Job{Bucket: "src", Key: "in/data.zip"})

	assert.Equal(t, 500, res.StatusCode)
	assert.Equal(t, "UNEXPECTED", decode(t, res).Error.Code)
}

func TestRun_CleansTempDir(t *testing.T) {
	data := buildArchive(t, "", member{"a.txt", "alpha"})
	store, _ := setup(t, "in/data.zip", data)
	e := newTestExtractor(t, store)

	e.Run(context.Background(), Job{Bucket: "src", Key: "in/data.zip"})

	entries, err := os.ReadDir(e.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_DeadlineBeforePassphraseCheck(t *testing.T) {
	data := buildArchive(t, "s3cret", member{"a.txt", "alpha"})
	store, root := setup(t, "in/secret.zip", data)
	e := newTestExtractor(t, store)

	// Less time left than the safety margin: the passphrase is never tried.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res := e.Run(ctx, Job{Bucket: "src", Key: "in/secret.zip", Password: "guess"})

	assert.Equal(t, 206, res.StatusCode)
	body := decode(t, res)
	assert.Equal(t, MsgDeadline, body.Message)
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, 0, body.Extracted)
	assert.Nil(t, body.Error)
	_, err := os.Stat(filepath.Join(root, "src", "in", "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

// closingStore downloads normally, then closes the destination file so the
// extractor's own close fails.
type closingStore struct {
	storage.ObjectStore
}

func (s closingStore) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	n, err := s.ObjectStore.Download(ctx, bucket, key, w)
	if f, ok := w.(*os.File); ok {
		f.Close()
	}
	return n, err
}

func TestRun_ArchiveCloseErrorFailsDownload(t *testing.T) {
	data := buildArchive(t, "", member{"a.txt", "alpha"})
	base, _ := setup(t, "in/data.zip", data)
	e := newTestExtractor(t, closingStore{ObjectStore: base})

	res := e.Run(context.Background(), Job{Bucket: "src", Key: "in/data.zip"})

	assert.Equal(t, 500, res.StatusCode)
	body := decode(t, res)
	require.NotNil(t, body.Error)
	assert.Equal(t, "DOWNLOAD_FAILED", body.Error.Code)
	assert.Equal(t, 0, body.Extracted)
}
