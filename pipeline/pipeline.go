// Package pipeline orchestrates one prediction request: decode the
// image, run inference, pick and categorize the top label, persist the
// image and its record.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/gofrs/uuid"

	"github.com/KathiaMedinaRodriguez23/api-reciclaje/stores"
)

// ErrInvalidImage marks malformed or unsupported image input. It is a
// client error, never retried.
var ErrInvalidImage = errors.New("invalid image")

// Predictor is the wrapped model the pipeline runs images through.
type Predictor interface {
	Predict(img image.Image) ([]float32, error)
	Classes() []string
}

type Pipeline struct {
	model   Predictor
	blobs   stores.BlobStore
	records stores.RecordStore

	now func() time.Time
}

func New(model Predictor, blobs stores.BlobStore, records stores.RecordStore) *Pipeline {
	return &Pipeline{
		model:   model,
		blobs:   blobs,
		records: records,
		now:     time.Now,
	}
}

// Result is what the prediction call itself returns. The persisted
// record's richer fields only surface through the listing interface.
type Result struct {
	Label string
	Probs map[string]float32
}

// Run classifies imageBytes and persists a prediction record. The
// image is uploaded first; if the record write then fails the uploaded
// blob is deleted, so a record with a broken thumbnail never counts as
// success.
func (p *Pipeline) Run(ctx context.Context, imageBytes []byte) (Result, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	probs, err := p.model.Predict(img)
	if err != nil {
		return Result{}, err
	}

	classes := p.model.Classes()
	top := topLabel(classes, probs)
	label := capitalize(top)

	probsByClass := make(map[string]float32, len(classes))
	for i, class := range classes {
		probsByClass[class] = probs[i]
	}

	id, err := uuid.NewV4()
	if err != nil {
		return Result{}, &stores.StorageError{Op: "new id", Err: err}
	}

	objectPath := fmt.Sprintf("predictions/%s.jpg", id)
	thumbnail, err := p.blobs.Upload(ctx, imageBytes, objectPath)
	if err != nil {
		return Result{}, err
	}

	rec := stores.Record{
		ID:        id.String(),
		Label:     label,
		Category:  Category(top),
		DateISO:   p.now().UTC().Truncate(time.Second).Format(time.RFC3339),
		Thumbnail: thumbnail,
	}
	if err := p.records.Put(ctx, rec); err != nil {
		if delErr := p.blobs.Delete(ctx, objectPath); delErr != nil {
			slog.Warn("orphaned blob after failed record write", "path", objectPath, "err", delErr)
		}
		return Result{}, err
	}

	slog.Info("prediction persisted", "id", rec.ID, "label", rec.Label, "category", rec.Category)
	return Result{Label: label, Probs: probsByClass}, nil
}

// topLabel picks the class with the highest probability. Ties keep the
// earliest class in vocabulary order.
func topLabel(classes []string, probs []float32) string {
	maxIdx := 0
	for i, p := range probs {
		if p > probs[maxIdx] {
			maxIdx = i
		}
	}
	return classes[maxIdx]
}

var inorganicLabels = map[string]bool{
	"plastic":   true,
	"glass":     true,
	"metal":     true,
	"paper":     true,
	"cardboard": true,
}

// Category maps a class label to its coarse waste grouping,
// case-insensitively.
func Category(label string) string {
	switch l := strings.ToLower(label); {
	case inorganicLabels[l]:
		return "inorganic"
	case l == "organic":
		return "organic"
	default:
		return "waste"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
