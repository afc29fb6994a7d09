package app

import (
	"strings"

	"gopkg.in/guregu/null.v3"
)

// PhotoKeyPrefix is the storage prefix every photo object key lives under.
const PhotoKeyPrefix = "photo/"

// Photo is a stored image with its analysis labels and user metadata.
type Photo struct {
	// Opaque storage key, unique per photo.
	Key string `json:"photo"`

	// Labels produced by image analysis, in the order returned.
	Labels []string `json:"labels"`

	// Album the photo belongs to. Null when the photo is in no album.
	AlbumID null.String `json:"albumId"`

	Description string    `json:"description"`
	Location    string    `json:"location"`
	UploadedAt  null.Time `json:"uploadedAt"`

	// Resolved content URL for download.
	DownloadURL string `json:"download_url"`

	IsFavorite bool `json:"isFavorite"`
}

// Album groups photos under a user chosen name.
type Album struct {
	ID   string `json:"albumId"`
	Name string `json:"name"`
}

// InAlbum reports whether the photo references albumID.
func (p Photo) InAlbum(albumID string) bool {
	return p.AlbumID.Valid && p.AlbumID.String == albumID
}

// AlbumRef turns an optional album id into a nullable reference. The empty
// string means no album.
func AlbumRef(albumID string) null.String {
	return null.NewString(albumID, albumID != "")
}

// NormalizePhotoKey prefixes key with "photo/" unless it already is.
func NormalizePhotoKey(key string) string {
	if strings.HasPrefix(key, PhotoKeyPrefix) {
		return key
	}
	return PhotoKeyPrefix + key
}

func sameKey(a, b string) bool {
	return NormalizePhotoKey(a) == NormalizePhotoKey(b)
}
