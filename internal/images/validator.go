// Package images validates user-supplied report photos before they are
// forwarded to the assistant.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	MaxImages     = 3
	MaxImageBytes = 10 << 20
)

var ErrInvalid = errors.New("invalid image upload")

type signature struct {
	contentType string
	match       func(head []byte) bool
}

func prefix(p string) func([]byte) bool {
	return func(head []byte) bool { return bytes.HasPrefix(head, []byte(p)) }
}

var signatures = []signature{
	{"image/jpeg", prefix("\xFF\xD8\xFF")},
	{"image/png", prefix("\x89PNG\r\n\x1a\n")},
	{"image/gif", prefix("GIF87a")},
	{"image/gif", prefix("GIF89a")},
	{"image/webp", func(head []byte) bool {
		return len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
	}},
}

// headLen covers the longest signature (RIFF....WEBP).
const headLen = 12

// Upload is one attached file. Content must be rewindable; ContentType is
// filled in by Validate from the detected signature.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.ReadSeeker
}

// Validate checks count, size and signature of every upload. The first
// violation aborts the batch. Each reader is left positioned at offset 0.
func Validate(uploads []Upload) error {
	if len(uploads) > MaxImages {
		return fmt.Errorf("%w: too many images, maximum allowed is %d", ErrInvalid, MaxImages)
	}
	for i := range uploads {
		u := &uploads[i]
		size, err := u.Content.Seek(0, io.SeekEnd)
		if err != nil {
			return fmt.Errorf("%w: read %q: %v", ErrInvalid, u.Filename, err)
		}
		if _, err := u.Content.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("%w: rewind %q: %v", ErrInvalid, u.Filename, err)
		}
		if size > MaxImageBytes {
			return fmt.Errorf("%w: image %q exceeds maximum size of %d MB", ErrInvalid, u.Filename, MaxImageBytes>>20)
		}

		head := make([]byte, headLen)
		n, err := io.ReadFull(u.Content, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: read %q: %v", ErrInvalid, u.Filename, err)
		}
		if _, err := u.Content.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("%w: rewind %q: %v", ErrInvalid, u.Filename, err)
		}

		ct, ok := Detect(head[:n])
		if !ok {
			return fmt.Errorf("%w: file %q is not a supported image (jpeg, png, gif, webp)", ErrInvalid, u.Filename)
		}
		u.ContentType = ct
	}
	return nil
}

// Detect returns the content type for the leading bytes of a file.
func Detect(head []byte) (string, bool) {
	for _, s := range signatures {
		if s.match(head) {
			return s.contentType, true
		}
	}
	return "", false
}
