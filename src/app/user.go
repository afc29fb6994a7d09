package app

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// User is the authenticated owner of albums and photos.
type User struct {
	// Subject of the identity token; owner id for every record.
	ID string `json:"id"`

	// User's preferred username, often used for display.
	Username string `json:"username"`

	Picture string `json:"picture"`

	Email string `json:"email"`

	Name string `json:"name"`
}

// ProfilePhotoKey is the storage key of the user's profile picture.
func ProfilePhotoKey(userID string) string {
	return fmt.Sprintf("profile_photos/%s.jpg", userID)
}

type ProfileAPI interface {
	GetProfilePhoto(ctx context.Context, token string) (string, error)
	UploadProfilePhoto(ctx context.Context, token string, image []byte) error
}

// RefreshProfilePhoto fetches the profile photo URL and caches it in state.
func RefreshProfilePhoto(ctx context.Context, api ProfileAPI, state *AppContext) (string, error) {
	url, err := api.GetProfilePhoto(ctx, state.Token)
	if err != nil {
		return "", errors.Wrap(err, "get profile photo")
	}
	state.ProfileImageURL = url
	return url, nil
}

// SetProfilePhoto compresses img, uploads it and refreshes the cached URL.
func SetProfilePhoto(ctx context.Context, api ProfileAPI, compressor Compressor, state *AppContext, img SourceImage) (string, error) {
	small, err := compressor.Compress(ctx, img)
	if err != nil {
		return "", err
	}
	if err := api.UploadProfilePhoto(ctx, state.Token, small.Data); err != nil {
		return "", errors.Wrap(err, "upload profile photo")
	}
	return RefreshProfilePhoto(ctx, api, state)
}
