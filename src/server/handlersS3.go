package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"

	"photogallery/src/app"
)

const maxLabels = 10

type (
	// ObjectStore is the bucket the photos live in.
	ObjectStore interface {
		PresignedPutURL(ctx context.Context, key string) (string, error)
		PresignedGetURL(ctx context.Context, key string) (string, error)
		UploadFile(ctx context.Context, key string, object io.Reader, size int64, contentType string) error
		GetFile(ctx context.Context, key string) (io.ReadCloser, error)
		DeleteFile(ctx context.Context, key string) error
	}

	// MetaStore keeps album and photo records per owner.
	MetaStore interface {
		CreateAlbum(ctx context.Context, owner, id, name string) error
		ListAlbums(ctx context.Context, owner string) ([]app.Album, error)
		DeleteAlbum(ctx context.Context, owner, id string) error
		ReserveUpload(ctx context.Context, owner, key string) error
		CheckUpload(ctx context.Context, owner, key string) error
		PutPhoto(ctx context.Context, owner string, p app.Photo) error
		SetLabels(ctx context.Context, owner, key string, labels []string) error
		SetFavorite(ctx context.Context, owner, key string, favorite bool) error
		GetPhoto(ctx context.Context, owner, key string) (app.Photo, error)
		ListPhotos(ctx context.Context, owner, albumID string) ([]app.Photo, error)
		DeletePhoto(ctx context.Context, owner, key string) error
	}

	// Labeler produces content labels for an image.
	Labeler interface {
		Labels(ctx context.Context, name string, data []byte) ([]string, error)
	}

	AppHandler struct {
		store        MetaStore
		s3           ObjectStore
		labeler      Labeler
		hub          *Hub
		urls         *cache.Cache
		labelTimeout time.Duration
		now          func() time.Time
		log          logrus.FieldLogger

		// labelling tracks background analysis so shutdown can wait for it.
		labelling sync.WaitGroup
	}

	PostAlbumBody struct {
		Name string `json:"name"`
	}

	PostAnalyzeBody struct {
		Photo       string `json:"photo"`
		AlbumID     string `json:"albumId"`
		Description string `json:"description"`
		Location    string `json:"location"`
	}

	DeletePhotoBody struct {
		Photo string `json:"photo"`
	}

	PostFavoriteBody struct {
		Photo      string `json:"photo"`
		IsFavorite *bool  `json:"isFavorite"`
	}

	PostProfilePhotoBody struct {
		Base64 string `json:"base64"`
	}
)

// NewS3Handler caches presigned download URLs for a little less than their
// lifetime.
func NewS3Handler(store MetaStore, s3 ObjectStore, labeler Labeler, hub *Hub, urlTTL, labelTimeout time.Duration, log logrus.FieldLogger) *AppHandler {
	cacheTTL := urlTTL - urlTTL/10
	if cacheTTL <= 0 {
		cacheTTL = cache.NoExpiration
	}
	return &AppHandler{
		store:        store,
		s3:           s3,
		labeler:      labeler,
		hub:          hub,
		urls:         cache.New(cacheTTL, 10*time.Minute),
		labelTimeout: labelTimeout,
		now:          time.Now,
		log:          log,
	}
}

func abortWithError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"message": "error", "error": message}
	if err != nil {
		body["error"] = fmt.Sprintf("%s: %v", message, err)
	}
	c.AbortWithStatusJSON(status, body)
}

// storeFailure answers 404 for unknown records and 500 otherwise.
func (a *AppHandler) storeFailure(c *gin.Context, what string, err error) {
	if errors.Is(err, app.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, what+" not found", nil)
		return
	}
	a.log.WithError(err).Error(what)
	abortWithError(c, http.StatusInternalServerError, "can not "+what, err)
}

func (a *AppHandler) downloadURL(ctx context.Context, key string) (string, error) {
	if u, ok := a.urls.Get(key); ok {
		return u.(string), nil
	}
	u, err := a.s3.PresignedGetURL(ctx, key)
	if err != nil {
		return "", err
	}
	a.urls.SetDefault(key, u)
	return u, nil
}

func (a *AppHandler) PostAlbum(c *gin.Context) {
	var requestBody PostAlbumBody
	if err := c.ShouldBindJSON(&requestBody); err != nil || strings.TrimSpace(requestBody.Name) == "" {
		abortWithError(c, http.StatusBadRequest, "album name is required", nil)
		return
	}
	id := uuid.NewString()
	if err := a.store.CreateAlbum(c.Request.Context(), currentUser(c).ID, id, strings.TrimSpace(requestBody.Name)); err != nil {
		a.storeFailure(c, "create album", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "album created", "albumId": id})
}

func (a *AppHandler) GetAlbums(c *gin.Context) {
	albums, err := a.store.ListAlbums(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		a.storeFailure(c, "list albums", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"albums": albums})
}

func (a *AppHandler) DeleteAlbum(c *gin.Context) {
	if err := a.store.DeleteAlbum(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		a.storeFailure(c, "album", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "album deleted"})
}

// uploadExt keeps the lower-cased ASCII letters and digits of the file
// name's extension, falling back to .jpg.
func uploadExt(fileName string) string {
	ext := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, strings.ToLower(path.Ext(path.Base(fileName))))
	if ext == "" {
		return ".jpg"
	}
	return "." + ext
}

// GetUploadURL reserves a new photo key and presigns a PUT for it.
func (a *AppHandler) GetUploadURL(c *gin.Context) {
	key := app.PhotoKeyPrefix + uuid.NewString() + uploadExt(c.Query("fileName"))
	if err := a.store.ReserveUpload(c.Request.Context(), currentUser(c).ID, key); err != nil {
		a.storeFailure(c, "reserve upload", err)
		return
	}
	uploadURL, err := a.s3.PresignedPutURL(c.Request.Context(), key)
	if err != nil {
		a.log.WithError(err).Error("presign upload")
		abortWithError(c, http.StatusInternalServerError, "can not presign upload", err)
		return
	}
	downloadURL, err := a.downloadURL(c.Request.Context(), key)
	if err != nil {
		a.log.WithError(err).Error("presign download")
		abortWithError(c, http.StatusInternalServerError, "can not presign download", err)
		return
	}
	c.JSON(http.StatusOK, app.UploadTarget{UploadURL: uploadURL, PhotoKey: key, DownloadURL: downloadURL})
}

// PostAnalyze records the uploaded photo and labels it in the background.
func (a *AppHandler) PostAnalyze(c *gin.Context) {
	var requestBody PostAnalyzeBody
	if err := c.ShouldBindJSON(&requestBody); err != nil || requestBody.Photo == "" {
		abortWithError(c, http.StatusBadRequest, "photo is required", nil)
		return
	}
	owner := currentUser(c).ID
	key := app.NormalizePhotoKey(requestBody.Photo)
	if err := a.store.CheckUpload(c.Request.Context(), owner, key); err != nil {
		a.storeFailure(c, "upload", err)
		return
	}
	photo := app.Photo{
		Key:         key,
		Labels:      []string{},
		AlbumID:     app.AlbumRef(requestBody.AlbumID),
		Description: requestBody.Description,
		Location:    requestBody.Location,
		UploadedAt:  null.TimeFrom(a.now().UTC()),
	}
	if err := a.store.PutPhoto(c.Request.Context(), owner, photo); err != nil {
		a.storeFailure(c, "record photo", err)
		return
	}
	a.labelling.Add(1)
	go func() {
		defer a.labelling.Done()
		a.label(owner, photo.Key)
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "analysis started", "photo": photo.Key})
}

func (a *AppHandler) label(owner, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.labelTimeout)
	defer cancel()
	log := a.log.WithFields(logrus.Fields{"owner": owner, "photo": key})

	labels := []string{}
	if a.labeler != nil {
		found, err := a.labelObject(ctx, key)
		if err != nil {
			log.WithError(err).Error("label photo")
		} else {
			labels = found
		}
	}
	if len(labels) > maxLabels {
		labels = labels[:maxLabels]
	}
	if err := a.store.SetLabels(ctx, owner, key, labels); err != nil {
		log.WithError(err).Error("store labels")
		return
	}
	log.WithField("labels", len(labels)).Info("photo analyzed")
	a.hub.Publish(owner, app.LabelEvent{Type: app.EventLabelsReady, Photo: key, Labels: labels})
}

func (a *AppHandler) labelObject(ctx context.Context, key string) ([]string, error) {
	object, err := a.s3.GetFile(ctx, key)
	if err != nil {
		return nil, err
	}
	defer object.Close()
	data, err := io.ReadAll(object)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return a.labeler.Labels(ctx, path.Base(key), data)
}

// WaitLabelling blocks until background analysis has finished.
func (a *AppHandler) WaitLabelling() {
	a.labelling.Wait()
}

func (a *AppHandler) GetLabels(c *gin.Context) {
	key := c.Query("photo")
	if key == "" {
		abortWithError(c, http.StatusBadRequest, "photo is required", nil)
		return
	}
	photo, err := a.store.GetPhoto(c.Request.Context(), currentUser(c).ID, app.NormalizePhotoKey(key))
	if err != nil {
		a.storeFailure(c, "photo", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo": photo.Key, "labels": photo.Labels})
}

func (a *AppHandler) GetPhotos(c *gin.Context) {
	photos, err := a.store.ListPhotos(c.Request.Context(), currentUser(c).ID, c.Query("albumId"))
	if err != nil {
		a.storeFailure(c, "list photos", err)
		return
	}
	for i := range photos {
		u, err := a.downloadURL(c.Request.Context(), photos[i].Key)
		if err != nil {
			a.log.WithError(err).WithField("photo", photos[i].Key).Warn("presign download")
			continue
		}
		photos[i].DownloadURL = u
	}
	c.JSON(http.StatusOK, photos)
}

func (a *AppHandler) DeletePhoto(c *gin.Context) {
	var requestBody DeletePhotoBody
	if err := c.ShouldBindJSON(&requestBody); err != nil || requestBody.Photo == "" {
		abortWithError(c, http.StatusBadRequest, "photo is required", nil)
		return
	}
	key := app.NormalizePhotoKey(requestBody.Photo)
	if err := a.store.DeletePhoto(c.Request.Context(), currentUser(c).ID, key); err != nil {
		a.storeFailure(c, "photo", err)
		return
	}
	a.urls.Delete(key)
	if err := a.s3.DeleteFile(c.Request.Context(), key); err != nil {
		a.log.WithError(err).WithField("photo", key).Error("delete object")
		abortWithError(c, http.StatusInternalServerError, "can not delete image from s3", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "photo deleted"})
}

// PostFavorite stores the value sent by the client.
func (a *AppHandler) PostFavorite(c *gin.Context) {
	var requestBody PostFavoriteBody
	if err := c.ShouldBindJSON(&requestBody); err != nil || requestBody.Photo == "" || requestBody.IsFavorite == nil {
		abortWithError(c, http.StatusBadRequest, "photo and isFavorite are required", nil)
		return
	}
	key := app.NormalizePhotoKey(requestBody.Photo)
	if err := a.store.SetFavorite(c.Request.Context(), currentUser(c).ID, key, *requestBody.IsFavorite); err != nil {
		a.storeFailure(c, "photo", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "favorite updated", "isFavorite": *requestBody.IsFavorite})
}

func (a *AppHandler) GetProfilePhoto(c *gin.Context) {
	u, err := a.s3.PresignedGetURL(c.Request.Context(), app.ProfilePhotoKey(currentUser(c).ID))
	if err != nil {
		a.log.WithError(err).Error("presign profile photo")
		abortWithError(c, http.StatusInternalServerError, "can not get profile photo", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

func (a *AppHandler) PostProfilePhoto(c *gin.Context) {
	var requestBody PostProfilePhotoBody
	if err := c.ShouldBindJSON(&requestBody); err != nil || requestBody.Base64 == "" {
		abortWithError(c, http.StatusBadRequest, "no image received", nil)
		return
	}
	data, err := base64.StdEncoding.DecodeString(requestBody.Base64)
	if err != nil || len(data) == 0 {
		abortWithError(c, http.StatusBadRequest, "image is not valid base64", err)
		return
	}
	key := app.ProfilePhotoKey(currentUser(c).ID)
	if err := a.s3.UploadFile(c.Request.Context(), key, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
		a.log.WithError(err).Error("upload profile photo")
		abortWithError(c, http.StatusInternalServerError, "can not upload image to s3", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "upload succeeded"})
}
