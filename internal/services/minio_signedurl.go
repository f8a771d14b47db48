package services

import (
	"context"
	"log"
	"net/url"
	"time"

	"shoemart_back_end/internal/models"
)

const SignedURLTTL = 15 * time.Minute

// SignedURL returns a temporary GET link for an object of the bucket.
func (s *MediaStore) SignedURL(ctx context.Context, key string, duration time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, duration, make(url.Values))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Sign fills URL on every attachment. Attachments that cannot be signed are
// returned without a link.
func (s *MediaStore) Sign(ctx context.Context, media []models.TicketMedia) []models.TicketMedia {
	out := make([]models.TicketMedia, len(media))
	for i, md := range media {
		u, err := s.SignedURL(ctx, md.Key, SignedURLTTL)
		if err != nil {
			log.Printf("⚠️ could not sign %s: %v", md.Key, err)
		}
		md.URL = u
		out[i] = md
	}
	return out
}
