// Package annotate stamps the detected damage label onto uploaded images.
package annotate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/example/damage-estimator/internal/logging"
)

// Store is the subset of the file storage used for reading sources and
// writing annotated copies.
type Store interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

var labelColor = color.RGBA{G: 255, A: 255}

const margin = 10

// Annotator reads a stored upload and writes a labelled copy.
type Annotator struct {
	sources Store
	output  Store
	logger  *zap.Logger
}

// New creates an Annotator reading from sources and writing to output.
func New(sources, output Store, logger *zap.Logger) *Annotator {
	return &Annotator{sources: sources, output: output, logger: logger.Named("annotator")}
}

// Annotate draws label in the bottom-left corner of the source image and
// returns the key of the new file.
func (a *Annotator) Annotate(ctx context.Context, sourceKey, label string) (string, error) {
	rc, err := a.sources.Open(ctx, sourceKey)
	if err != nil {
		return "", logging.NewOperationError("annotate.open_source", "", err)
	}
	defer rc.Close()

	src, format, err := image.Decode(rc)
	if err != nil {
		return "", logging.NewOperationError("annotate.decode", "", fmt.Errorf("image unreadable: %w", err))
	}

	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)
	drawLabel(canvas, strings.ToUpper(label))

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, canvas)
	default:
		err = jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return "", logging.NewOperationError("annotate.encode", "", err)
	}

	key := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + sourceKey
	if err := a.output.Save(ctx, key, &buf); err != nil {
		return "", logging.NewOperationError("annotate.save", "", err)
	}
	a.logger.Debug("annotated image written", zap.String("source", sourceKey), zap.String("annotated", key))
	return key, nil
}

func drawLabel(img *image.RGBA, text string) {
	b := img.Bounds()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(b.Min.X+margin, b.Max.Y-margin),
	}
	d.DrawString(text)
}
