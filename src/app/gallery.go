package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// GalleryAPI is the part of the remote API the gallery synchronizes with.
type GalleryAPI interface {
	ListAlbums(ctx context.Context, token string) ([]Album, error)
	ListPhotos(ctx context.Context, token, albumID string) ([]Photo, error)
	CreateAlbum(ctx context.Context, token, name string) (string, error)
	DeleteAlbum(ctx context.Context, token, albumID string) error
	DeletePhoto(ctx context.Context, token, key string) error
	ToggleFavorite(ctx context.Context, token, key string, current bool) (bool, error)
}

// Gallery holds the loaded albums and photos and applies confirmed
// mutations to them. Lists change only after the remote call succeeds.
type Gallery struct {
	api    GalleryAPI
	notify Notifier
	log    logrus.FieldLogger

	mu     sync.RWMutex
	albums []Album
	photos []Photo
}

func NewGallery(api GalleryAPI, notify Notifier, log logrus.FieldLogger) *Gallery {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Gallery{api: api, notify: notify, log: log}
}

// Load fetches albums and photos in two independent requests. A failure in
// one does not prevent the other from being applied; the first error is
// returned.
func (g *Gallery) Load(ctx context.Context, token, albumID string) error {
	var eg errgroup.Group
	eg.Go(func() error {
		albums, err := g.api.ListAlbums(ctx, token)
		if err != nil {
			g.log.WithError(err).Error("load albums")
			return errors.Wrap(err, "load albums")
		}
		g.mu.Lock()
		g.albums = albums
		g.mu.Unlock()
		return nil
	})
	eg.Go(func() error {
		return g.loadPhotos(ctx, token, albumID)
	})
	return eg.Wait()
}

// FilterByAlbum reloads the photo list restricted to albumID. An empty id
// loads every photo.
func (g *Gallery) FilterByAlbum(ctx context.Context, token, albumID string) error {
	return g.loadPhotos(ctx, token, albumID)
}

func (g *Gallery) loadPhotos(ctx context.Context, token, albumID string) error {
	photos, err := g.api.ListPhotos(ctx, token, albumID)
	if err != nil {
		g.log.WithError(err).WithField("album", albumID).Error("load photos")
		return errors.Wrap(err, "load photos")
	}
	SortByUploadedDesc(photos)
	g.mu.Lock()
	g.photos = photos
	g.mu.Unlock()
	return nil
}

// Albums returns a copy of the loaded albums.
func (g *Gallery) Albums() []Album {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Album(nil), g.albums...)
}

// Photos returns a copy of the loaded photos in display order.
func (g *Gallery) Photos() []Photo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Photo(nil), g.photos...)
}

// Search filters the loaded photos by term.
func (g *Gallery) Search(term string) []Photo {
	return FilterPhotos(g.Photos(), term)
}

// Favorites returns the loaded favorite photos, newest first.
func (g *Gallery) Favorites() []Photo {
	return Favorites(g.Photos())
}

// Prepend puts p at the head of the photo list.
func (g *Gallery) Prepend(p Photo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.photos = append([]Photo{p}, g.photos...)
}

func (g *Gallery) CreateAlbum(ctx context.Context, token, name string) (Album, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		g.notify.Notify("Enter an album name.", false)
		return Album{}, ErrEmptyAlbumName
	}
	id, err := g.api.CreateAlbum(ctx, token, name)
	if err != nil {
		g.log.WithError(err).WithField("album", name).Error("create album")
		g.notify.Notify("Could not create the album.", false)
		return Album{}, errors.Wrap(err, "create album")
	}
	album := Album{ID: id, Name: name}
	g.mu.Lock()
	g.albums = append(g.albums, album)
	g.mu.Unlock()
	g.notify.Notify(fmt.Sprintf("Album %q created.", name), true)
	return album, nil
}

// DeleteAlbum refuses, without contacting the server, to delete an album
// that any loaded photo references. The check only sees the photos that
// are currently loaded.
func (g *Gallery) DeleteAlbum(ctx context.Context, token, albumID string) error {
	if g.albumInUse(albumID) {
		g.notify.Notify("An album that contains photos cannot be deleted.", false)
		return ErrAlbumNotEmpty
	}
	if err := g.api.DeleteAlbum(ctx, token, albumID); err != nil {
		g.log.WithError(err).WithField("album", albumID).Error("delete album")
		g.notify.Notify("Could not delete the album.", false)
		return errors.Wrap(err, "delete album")
	}
	g.mu.Lock()
	kept := g.albums[:0]
	for _, a := range g.albums {
		if a.ID != albumID {
			kept = append(kept, a)
		}
	}
	g.albums = kept
	g.mu.Unlock()
	g.notify.Notify("Album deleted.", true)
	return nil
}

func (g *Gallery) albumInUse(albumID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.photos {
		if p.InAlbum(albumID) {
			return true
		}
	}
	return false
}

func (g *Gallery) DeletePhoto(ctx context.Context, token, key string) error {
	if err := g.api.DeletePhoto(ctx, token, key); err != nil {
		g.log.WithError(err).WithField("photo", key).Error("delete photo")
		g.notify.Notify("Could not delete the photo.", false)
		return errors.Wrap(err, "delete photo")
	}
	g.mu.Lock()
	kept := g.photos[:0]
	for _, p := range g.photos {
		if !sameKey(p.Key, key) {
			kept = append(kept, p)
		}
	}
	g.photos = kept
	g.mu.Unlock()
	g.notify.Notify("Photo deleted.", true)
	return nil
}

// ToggleFavorite flips the favorite flag of a loaded photo and returns the
// new value. The request carries the negation of the state held locally.
func (g *Gallery) ToggleFavorite(ctx context.Context, token, key string) (bool, error) {
	current, ok := g.favoriteState(key)
	if !ok {
		return false, ErrPhotoNotLoaded
	}
	next, err := g.api.ToggleFavorite(ctx, token, key, current)
	if err != nil {
		g.log.WithError(err).WithField("photo", key).Error("toggle favorite")
		g.notify.Notify("Could not change the favorite status.", false)
		return current, errors.Wrap(err, "toggle favorite")
	}
	g.mu.Lock()
	for i := range g.photos {
		if sameKey(g.photos[i].Key, key) {
			g.photos[i].IsFavorite = next
		}
	}
	g.mu.Unlock()
	return next, nil
}

func (g *Gallery) favoriteState(key string) (bool, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.photos {
		if sameKey(p.Key, key) {
			return p.IsFavorite, true
		}
	}
	return false, false
}
