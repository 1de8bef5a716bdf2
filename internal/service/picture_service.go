package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"quillpost/internal/models"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultPictureDir       = "static/profile_pics"
	DefaultPictureMaxSizeMB = 4
	PictureMaxSide          = 125
	// uploads claiming more than this per side are refused before decoding
	PictureMaxDecodeSide    = 8000
	JPEGQuality             = 85
	WebPQuality             = 80
)

// PictureUpload is an uploaded profile picture.
type PictureUpload struct {
	Filename string
	Content  []byte
}

// PictureService stores profile pictures as small thumbnails on disk.
type PictureService struct {
	dir      string
	maxBytes int64
}

func NewPictureService(dir string, maxUploadMB int) *PictureService {
	if dir == "" {
		dir = DefaultPictureDir
	}
	if maxUploadMB <= 0 {
		maxUploadMB = DefaultPictureMaxSizeMB
	}
	return &PictureService{dir: dir, maxBytes: int64(maxUploadMB) << 20}
}

// Dir is the directory pictures are written to.
func (s *PictureService) Dir() string { return s.dir }

// Path returns the on-disk location of a stored picture.
func (s *PictureService) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Save decodes the upload, shrinks it to fit the thumbnail box and writes it
// under a random name keeping the extension. The stored name is returned.
func (s *PictureService) Save(ctx context.Context, in PictureUpload) (string, error) {
	ext := pictureExt(in.Filename)
	if ext == "" {
		return "", models.NewFieldError("picture", "File does not have an approved extension: jpg, jpeg, png, webp")
	}
	if len(in.Content) == 0 {
		return "", models.NewFieldError("picture", "Picture file is empty")
	}
	if int64(len(in.Content)) > s.maxBytes {
		return "", models.NewFieldError("picture", fmt.Sprintf("Picture exceeds %d MB", s.maxBytes>>20))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	hdr, format, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil || !isSupportedDecodedFormat(format) {
		return "", models.NewFieldError("picture", "Picture could not be read as an image")
	}
	if hdr.Width > PictureMaxDecodeSide || hdr.Height > PictureMaxDecodeSide {
		return "", models.NewFieldError("picture",
			fmt.Sprintf("Picture dimensions exceed %dx%d", PictureMaxDecodeSide, PictureMaxDecodeSide))
	}

	src, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil || !isSupportedDecodedFormat(format) {
		return "", models.NewFieldError("picture", "Picture could not be read as an image")
	}

	thumb := resizeToFit(src, PictureMaxSide, PictureMaxSide)
	data, err := encodeAs(thumb, ext)
	if err != nil {
		return "", models.NewInternalError(fmt.Errorf("encode picture: %w", err))
	}

	name := randomPictureName() + ext
	if err := writeBytesToFile(s.Path(name), data); err != nil {
		return "", models.NewInternalError(fmt.Errorf("write picture: %w", err))
	}
	return name, nil
}

// Remove deletes a stored picture. The default image and missing files are
// ignored.
func (s *PictureService) Remove(name string) error {
	if name == "" || name == models.DefaultImageFile {
		return nil
	}
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove picture %s: %w", name, err)
	}
	return nil
}

// EnsureDefault writes a neutral placeholder for the default picture when the
// directory does not have one yet.
func (s *PictureService) EnsureDefault() error {
	path := s.Path(models.DefaultImageFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat default picture: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, PictureMaxSide, PictureMaxSide))
	xdraw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 0xd1, G: 0xd5, B: 0xdb, A: 0xff}}, image.Point{}, xdraw.Src)
	data, err := encodeJPEG(img, JPEGQuality)
	if err != nil {
		return fmt.Errorf("encode default picture: %w", err)
	}
	if err := writeBytesToFile(path, data); err != nil {
		return fmt.Errorf("write default picture: %w", err)
	}
	return nil
}

func pictureExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
		return ext
	default:
		return ""
	}
}

func randomPictureName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func isSupportedDecodedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "png", "webp":
		return true
	default:
		return false
	}
}

func encodeAs(img image.Image, ext string) ([]byte, error) {
	switch ext {
	case ".png":
		buf := bytes.NewBuffer(nil)
		if err := png.Encode(buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case ".webp":
		return encodeWebP(img, WebPQuality)
	default:
		return encodeJPEG(img, JPEGQuality)
	}
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeBytesToFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
