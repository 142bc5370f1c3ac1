package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KathiaMedinaRodriguez23/api-reciclaje/stores"
)

var testClasses = []string{"cardboard", "glass", "metal", "organic", "paper", "plastic", "trash"}

type stubModel struct {
	probs []float32
	err   error
}

func (s *stubModel) Predict(img image.Image) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.probs, nil
}

func (s *stubModel) Classes() []string { return testClasses }

type fakeBlobStore struct {
	uploads map[string][]byte
	deleted []string
	failUp  bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{uploads: make(map[string][]byte)}
}

func (f *fakeBlobStore) Upload(_ context.Context, data []byte, objectPath string) (string, error) {
	if f.failUp {
		return "", &stores.StorageError{Op: "upload", Err: errors.New("bucket down")}
	}
	f.uploads[objectPath] = data
	return "https://blobs.example.com/" + objectPath + "?token=t", nil
}

func (f *fakeBlobStore) Delete(_ context.Context, objectPath string) error {
	delete(f.uploads, objectPath)
	f.deleted = append(f.deleted, objectPath)
	return nil
}

type fakeRecordStore struct {
	records []stores.Record
	failPut bool
}

func (f *fakeRecordStore) Put(_ context.Context, rec stores.Record) error {
	if f.failPut {
		return &stores.StorageError{Op: "put record", Err: errors.New("db down")}
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecordStore) List(_ context.Context, limit int, startAfterISO string) ([]stores.Record, error) {
	return f.records, nil
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	records := &fakeRecordStore{}

	p := New(&stubModel{probs: []float32{0.1, 0.1, 0.1, 0.05, 0.05, 0.6, 0.0}}, blobs, records)
	p.now = func() time.Time {
		return time.Date(2025, 12, 23, 14, 5, 0, 123456789, time.UTC)
	}

	res, err := p.Run(ctx, jpegBytes(t, 10, 10))
	require.NoError(t, err)

	assert.Equal(t, "Plastic", res.Label)
	require.Len(t, res.Probs, 7)
	assert.Equal(t, float32(0.6), res.Probs["plastic"])
	assert.Equal(t, float32(0.0), res.Probs["trash"])

	require.Len(t, records.records, 1)
	rec := records.records[0]
	assert.Equal(t, "Plastic", rec.Label)
	assert.Equal(t, "inorganic", rec.Category)
	assert.Equal(t, "2025-12-23T14:05:00Z", rec.DateISO)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "https://blobs.example.com/predictions/"+rec.ID+".jpg?token=t", rec.Thumbnail)

	uploaded, ok := blobs.uploads["predictions/"+rec.ID+".jpg"]
	require.True(t, ok)
	assert.Equal(t, jpegBytes(t, 10, 10), uploaded)
}

func TestRunInvalidImage(t *testing.T) {
	p := New(&stubModel{probs: make([]float32, 7)}, newFakeBlobStore(), &fakeRecordStore{})

	_, err := p.Run(context.Background(), []byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestRunRecordWriteFailureDeletesBlob(t *testing.T) {
	blobs := newFakeBlobStore()
	records := &fakeRecordStore{failPut: true}
	p := New(&stubModel{probs: []float32{0, 0, 0, 0, 0, 1, 0}}, blobs, records)

	_, err := p.Run(context.Background(), jpegBytes(t, 4, 4))
	require.Error(t, err)

	var storageErr *stores.StorageError
	require.ErrorAs(t, err, &storageErr)

	// The compensating delete: no orphaned image with a record that
	// never landed.
	assert.Len(t, blobs.deleted, 1)
	assert.Empty(t, blobs.uploads)
}

func TestRunUploadFailure(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.failUp = true
	records := &fakeRecordStore{}
	p := New(&stubModel{probs: []float32{0, 0, 0, 0, 0, 1, 0}}, blobs, records)

	_, err := p.Run(context.Background(), jpegBytes(t, 4, 4))
	var storageErr *stores.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Empty(t, records.records)
}

func TestTopLabelTieBreak(t *testing.T) {
	// Equal maxima keep the earliest class in vocabulary order.
	assert.Equal(t, "cardboard", topLabel(testClasses, []float32{0.5, 0.5, 0.1, 0.1, 0.5, 0.1, 0.1}))
	assert.Equal(t, "glass", topLabel(testClasses, []float32{0.1, 0.5, 0.5, 0.1, 0.1, 0.1, 0.1}))
}

func TestCategory(t *testing.T) {
	table := []struct {
		label string
		want  string
	}{
		{"plastic", "inorganic"},
		{"Plastic", "inorganic"},
		{"GLASS", "inorganic"},
		{"metal", "inorganic"},
		{"paper", "inorganic"},
		{"CardBoard", "inorganic"},
		{"organic", "organic"},
		{"Organic", "organic"},
		{"trash", "waste"},
		{"styrofoam", "waste"},
		{"", "waste"},
	}
	for _, tc := range table {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.want, Category(tc.label))
		})
	}
}
