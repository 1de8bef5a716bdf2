// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"

	"quillpost/internal/mailer"

	"github.com/chai2010/webp"
)

type fataler interface {
	Helper()
	Fatalf(string, ...any)
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return img
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t fataler, w, h int) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, solid(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// OversizedPNG returns a 1x1 PNG whose header claims w x h pixels. Decoding
// the pixel data fails, but the header alone is valid.
func OversizedPNG(t fataler, w, h uint32) []byte {
	t.Helper()
	data := TinyPNG(t, 1, 1)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

// TinyJPEG returns an in-memory JPEG byte slice with the requested dimensions.
func TinyJPEG(t fataler, w, h int) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, solid(w, h), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// TinyWebP returns an in-memory WebP byte slice with the requested dimensions.
func TinyWebP(t fataler, w, h int) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, solid(w, h), &webp.Options{Quality: 70}); err != nil {
		t.Fatalf("encode webp: %v", err)
	}
	return buf.Bytes()
}

// MailRecorder is a mailer.Mailer that keeps every message in memory.
type MailRecorder struct {
	mu   sync.Mutex
	sent []mailer.Message
	Err  error
}

// Send records msg, or returns Err when set.
func (r *MailRecorder) Send(_ context.Context, msg mailer.Message) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *MailRecorder) Sent() []mailer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mailer.Message(nil), r.sent...)
}

// Last returns the most recent message and whether there was one.
func (r *MailRecorder) Last() (mailer.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return mailer.Message{}, false
	}
	return r.sent[len(r.sent)-1], true
}
