package imagegen

import (
	"context"
	"strings"

	"courtside/internal/domain"
	"courtside/internal/providers/chat"
	"courtside/internal/resolver"
)

// GenerateRequest is the inbound payload: a single selfie, or two photos for
// a pair shot.
type GenerateRequest struct {
	Image  string `json:"image"`
	ImageA string `json:"imageA"`
	ImageB string `json:"imageB"`
}

// IsPair reports whether the request uses the two-photo form.
func (r GenerateRequest) IsPair() bool {
	return strings.TrimSpace(r.Image) == "" &&
		(strings.TrimSpace(r.ImageA) != "" || strings.TrimSpace(r.ImageB) != "")
}

// Images validates the request and returns the images in upload order.
func (r GenerateRequest) Images() ([]string, error) {
	var images []string
	if r.IsPair() {
		images = []string{strings.TrimSpace(r.ImageA), strings.TrimSpace(r.ImageB)}
	} else {
		images = []string{strings.TrimSpace(r.Image)}
	}
	for _, img := range images {
		if img == "" {
			return nil, domain.ErrImageRequired
		}
		if !isImageInput(img) {
			return nil, domain.ErrInvalidImage
		}
	}
	return images, nil
}

func isImageInput(img string) bool {
	lower := strings.ToLower(img)
	if strings.HasPrefix(lower, "data:image/") {
		return strings.Contains(lower, ";base64,")
	}
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

// Prompts holds the fixed instructions sent along with the photos.
type Prompts struct {
	Single string
	Pair   string
}

// Outcome is what the HTTP layer sends back. Exactly one of Raw (passthrough
// dialect) or Result is meaningful.
type Outcome struct {
	Passthrough bool
	Raw         string
	Result      *resolver.Result
}

// Invoker performs the upstream completion call.
type Invoker interface {
	Complete(ctx context.Context, req chat.Request) (*chat.Response, error)
}
