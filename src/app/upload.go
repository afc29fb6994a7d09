package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"
)

// State is a step of the upload pipeline.
type State int

const (
	StateIdle State = iota
	StateCompressing
	StateRequestingURL
	StateUploading
	StateAnalyzing
	StateAwaitingLabels
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateCompressing:    "compressing",
	StateRequestingURL:  "requesting-url",
	StateUploading:      "uploading",
	StateAnalyzing:      "analyzing",
	StateAwaitingLabels: "awaiting-labels",
	StateComplete:       "complete",
	StateFailed:         "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// UploadTarget is the presigned destination returned by the backend.
type UploadTarget struct {
	UploadURL   string `json:"upload_url"`
	PhotoKey    string `json:"photo_key"`
	DownloadURL string `json:"download_url"`
}

// AnalyzeRequest announces uploaded bytes to the backend.
type AnalyzeRequest struct {
	PhotoKey    string
	AlbumID     string
	Description string
	Location    string
}

// UploadAPI is the part of the remote API the pipeline drives.
type UploadAPI interface {
	GenerateUploadURL(ctx context.Context, token, fileName, albumID string) (UploadTarget, error)
	PutObject(ctx context.Context, uploadURL, contentType string, body []byte) error
	AnalyzePhoto(ctx context.Context, token string, req AnalyzeRequest) error
}

// UploadForm holds the user's input for the next upload.
type UploadForm struct {
	File        *SourceImage
	AlbumID     string
	Description string
	Location    string
}

// Reset clears the form after a successful upload.
func (f *UploadForm) Reset() {
	*f = UploadForm{}
}

// UploadError records the step at which an upload failed. Steps completed
// before it are not rolled back.
type UploadError struct {
	State State
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed while %s: %v", e.State, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Uploader runs compress, presign, put, analyze and label wait strictly in
// sequence for one upload. Independent uploads may run concurrently; each
// prepends its photo to the gallery when it completes.
type Uploader struct {
	API        UploadAPI
	Compressor Compressor
	Labels     LabelWaiter
	Gallery    *Gallery
	Notifier   Notifier
	Log        logrus.FieldLogger

	// Now stamps the synthesized photo. Defaults to time.Now.
	Now func() time.Time
	// OnState observes every transition when set.
	OnState func(State)
}

func NewUploader(api UploadAPI, compressor Compressor, labels LabelWaiter, gallery *Gallery, notify Notifier, log logrus.FieldLogger) *Uploader {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Uploader{
		API:        api,
		Compressor: compressor,
		Labels:     labels,
		Gallery:    gallery,
		Notifier:   notify,
		Log:        log,
		Now:        time.Now,
	}
}

func (u *Uploader) enter(log logrus.FieldLogger, s State) {
	log.WithField("state", s).Debug("upload state")
	if u.OnState != nil {
		u.OnState(s)
	}
}

func (u *Uploader) fail(log logrus.FieldLogger, s State, err error) error {
	u.enter(log, StateFailed)
	log.WithError(err).WithField("state", s).Error("upload failed")
	u.Notifier.Notify("Upload or analysis failed.", false)
	return &UploadError{State: s, Err: err}
}

// Upload sends form.File through the pipeline and returns the photo it
// added to the gallery. The form is cleared on success only.
func (u *Uploader) Upload(ctx context.Context, token string, form *UploadForm) (Photo, error) {
	if form == nil || form.File == nil || len(form.File.Data) == 0 {
		u.Notifier.Notify("Choose an image first.", false)
		return Photo{}, ErrNoFile
	}
	log := u.Log.WithField("file", form.File.Name)

	u.enter(log, StateCompressing)
	img, err := u.Compressor.Compress(ctx, *form.File)
	if err != nil {
		return Photo{}, u.fail(log, StateCompressing, err)
	}

	u.enter(log, StateRequestingURL)
	target, err := u.API.GenerateUploadURL(ctx, token, img.Name, form.AlbumID)
	if err != nil {
		return Photo{}, u.fail(log, StateRequestingURL, err)
	}
	log = log.WithField("photo", target.PhotoKey)

	u.enter(log, StateUploading)
	if err := u.API.PutObject(ctx, target.UploadURL, img.ContentType, img.Data); err != nil {
		return Photo{}, u.fail(log, StateUploading, err)
	}

	u.enter(log, StateAnalyzing)
	err = u.API.AnalyzePhoto(ctx, token, AnalyzeRequest{
		PhotoKey:    target.PhotoKey,
		AlbumID:     form.AlbumID,
		Description: form.Description,
		Location:    form.Location,
	})
	if err != nil {
		return Photo{}, u.fail(log, StateAnalyzing, err)
	}

	u.enter(log, StateAwaitingLabels)
	labels, err := u.Labels.WaitLabels(ctx, token, target.PhotoKey)
	if err != nil {
		return Photo{}, u.fail(log, StateAwaitingLabels, errors.Wrap(err, "wait for labels"))
	}
	if labels == nil {
		labels = []string{}
	}

	photo := Photo{
		Key:         target.PhotoKey,
		Labels:      labels,
		AlbumID:     AlbumRef(form.AlbumID),
		Description: form.Description,
		Location:    form.Location,
		UploadedAt:  null.TimeFrom(u.Now().UTC()),
		DownloadURL: target.DownloadURL,
	}
	if u.Gallery != nil {
		u.Gallery.Prepend(photo)
	}
	form.Reset()
	u.enter(log, StateComplete)
	u.Notifier.Notify("Photo uploaded and analyzed.", true)
	return photo, nil
}
