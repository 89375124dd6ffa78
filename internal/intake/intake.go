// Package intake validates user-supplied images and owns the one current
// image resource.
package intake

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"sync"

	"detection-demo/internal/vision"
)

// MaxUploadBytes caps accepted uploads at 10 MiB.
const MaxUploadBytes = 10 << 20

// ImageResource is the one active user image. It is replaced wholesale when a
// new upload is accepted and is never persisted.
type ImageResource struct {
	Data   []byte
	Format string
	Img    image.Image
	Width  int
	Height int
}

// ContentType returns the MIME type matching the decoded format.
func (r *ImageResource) ContentType() string {
	return "image/" + r.Format
}

// Store holds at most one ImageResource.
type Store struct {
	mu      sync.RWMutex
	current *ImageResource
}

func NewStore() *Store {
	return &Store{}
}

// Accept validates data and, on success, replaces the current resource.
// Rejection leaves the current resource untouched.
func (s *Store) Accept(data []byte) (*ImageResource, error) {
	if len(data) == 0 {
		return nil, &vision.ValidationError{Code: vision.CodeEmpty, Reason: "no image data provided"}
	}
	if len(data) > MaxUploadBytes {
		return nil, &vision.ValidationError{
			Code:   vision.CodeTooLarge,
			Reason: fmt.Sprintf("image is %d bytes; the limit is %d", len(data), MaxUploadBytes),
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &vision.ValidationError{Code: vision.CodeBadImage, Reason: "could not decode image; supported formats are PNG, JPEG and GIF"}
	}

	bounds := img.Bounds()
	res := &ImageResource{
		Data:   data,
		Format: format,
		Img:    img,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	s.mu.Lock()
	s.current = res
	s.mu.Unlock()

	return res, nil
}

// Current returns the active resource, or nil when none has been accepted.
func (s *Store) Current() *ImageResource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
