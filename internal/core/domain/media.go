package domain

import "math"

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type Media struct {
	Type MediaType `json:"type"`
	Src  string    `json:"src"`
}

// BuildGallery orders videos before images and prefixes every path with the media base URL.
func BuildGallery(baseURL string, videos, images []string) []Media {
	gallery := make([]Media, 0, len(videos)+len(images))
	for _, v := range videos {
		if v == "" {
			continue
		}
		gallery = append(gallery, Media{Type: MediaTypeVideo, Src: baseURL + v})
	}
	for _, img := range images {
		if img == "" {
			continue
		}
		gallery = append(gallery, Media{Type: MediaTypeImage, Src: baseURL + img})
	}
	return gallery
}

// carouselMaxViewportRatio caps a slide at 80% of the viewport height.
const carouselMaxViewportRatio = 0.8

// FitHeight computes the carousel height for a medium of the given natural
// size rendered at viewportWidth. It returns 0 when the size is unknown.
func FitHeight(naturalWidth, naturalHeight, viewportWidth, viewportHeight float64) int {
	if naturalWidth <= 0 || naturalHeight <= 0 || viewportWidth <= 0 {
		return 0
	}
	maxHeight := int(math.Round(viewportHeight * carouselMaxViewportRatio))
	next := int(math.Round(viewportWidth * naturalHeight / naturalWidth))
	return max(1, min(maxHeight, next))
}
