package lineage

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

// DecodeLabelImage reads single label image from TIFF stream.
// 8-bit and 16-bit grayscale images are read as is, anything else goes through
// the 16-bit gray color model.
func DecodeLabelImage(r io.Reader) (*LabelImage, error) {
	decoded, err := tiff.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "Can't decode tiff")
	}
	bounds := decoded.Bounds()
	img := NewLabelImage(bounds.Dx(), bounds.Dy())
	switch src := decoded.(type) {
	case *image.Gray16:
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				img.Labels[y*img.Width+x] = uint32(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				img.Labels[y*img.Width+x] = uint32(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				c := color.Gray16Model.Convert(decoded.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				img.Labels[y*img.Width+x] = uint32(c.Y)
			}
		}
	}
	return img, nil
}

// EncodeLabelImage writes label image as 16-bit grayscale TIFF
func EncodeLabelImage(w io.Writer, img *LabelImage, compress bool) error {
	gray := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			label := img.Labels[y*img.Width+x]
			if label > math.MaxUint16 {
				return fmt.Errorf("label %d at (%d, %d) does not fit 16-bit mask", label, x, y)
			}
			gray.SetGray16(x, y, color.Gray16{Y: uint16(label)})
		}
	}
	opts := &tiff.Options{Compression: tiff.Uncompressed}
	if compress {
		opts.Compression = tiff.Deflate
	}
	return tiff.Encode(w, gray, opts)
}

// ReadLabelImage reads label image from TIFF file
func ReadLabelImage(path string) (*LabelImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := DecodeLabelImage(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read label image %s", path)
	}
	return img, nil
}

// LoadLabelStore loads every file matching pattern inside dir, in lexical order.
// All frames must share one shape.
func LoadLabelStore(dir, pattern string) (*MemoryLabelStore, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "Bad mask pattern %q", pattern)
	}
	sort.Strings(files)
	frames := make([]*LabelImage, 0, len(files))
	for i, file := range files {
		img, err := ReadLabelImage(file)
		if err != nil {
			return nil, err
		}
		if i > 0 && (img.Width != frames[0].Width || img.Height != frames[0].Height) {
			return nil, fmt.Errorf("mask %s is %dx%d, expected %dx%d", file, img.Width, img.Height, frames[0].Width, frames[0].Height)
		}
		frames = append(frames, img)
	}
	return NewMemoryLabelStore(frames...), nil
}
