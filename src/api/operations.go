package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"gopkg.in/guregu/null.v3"

	"photogallery/src/app"
)

func (c *Client) CreateAlbum(ctx context.Context, token, name string) (string, error) {
	const op = "create album"
	res, err := c.do(ctx, c.rc, op, token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]string{"name": name}).Post("/albums")
	})
	if err != nil {
		return "", err
	}
	var out struct {
		AlbumID string `json:"albumId"`
	}
	if err := decode(op, res, &out); err != nil {
		return "", err
	}
	return out.AlbumID, nil
}

// ListAlbums accepts both a bare array and an {"albums": [...]} object.
func (c *Client) ListAlbums(ctx context.Context, token string) ([]app.Album, error) {
	const op = "list albums"
	res, err := c.do(ctx, c.rc, op, token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/albums")
	})
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := decode(op, res, &raw); err != nil {
		return nil, err
	}
	albums := []app.Album{}
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &albums)
	} else if len(raw) > 0 {
		var wrapped struct {
			Albums []app.Album `json:"albums"`
		}
		err = json.Unmarshal(raw, &wrapped)
		if wrapped.Albums != nil {
			albums = wrapped.Albums
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s: decode response", op)
	}
	return albums, nil
}

func (c *Client) DeleteAlbum(ctx context.Context, token, albumID string) error {
	_, err := c.do(ctx, c.rc, "delete album", token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.Delete("/albums/" + url.PathEscape(albumID))
	})
	return err
}

func (c *Client) GenerateUploadURL(ctx context.Context, token, fileName, albumID string) (app.UploadTarget, error) {
	const op = "generate upload url"
	res, err := c.do(ctx, c.rc, op, token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		if fileName != "" {
			r.SetQueryParam("fileName", fileName)
		}
		if albumID != "" {
			r.SetQueryParam("albumId", albumID)
		}
		return r.Get("/upload-url")
	})
	if err != nil {
		return app.UploadTarget{}, err
	}
	var target app.UploadTarget
	if err := decode(op, res, &target); err != nil {
		return app.UploadTarget{}, err
	}
	if target.UploadURL == "" || target.PhotoKey == "" {
		return app.UploadTarget{}, errors.Errorf("%s: incomplete upload target", op)
	}
	return target, nil
}

// PutObject sends body straight to a presigned URL. The URL carries its own
// authorization, so no token is attached.
func (c *Client) PutObject(ctx context.Context, uploadURL, contentType string, body []byte) error {
	_, err := c.do(ctx, c.rc, "put object", "", noAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", contentType).SetBody(body).Put(uploadURL)
	})
	return err
}

type analyzeBody struct {
	Photo       string `json:"photo"`
	AlbumID     string `json:"albumId,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

func (c *Client) AnalyzePhoto(ctx context.Context, token string, req app.AnalyzeRequest) error {
	_, err := c.do(ctx, c.rc, "analyze photo", token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(analyzeBody{
			Photo:       req.PhotoKey,
			AlbumID:     req.AlbumID,
			Description: req.Description,
			Location:    req.Location,
		}).Post("/analyze")
	})
	return err
}

func (c *Client) GetLabels(ctx context.Context, token, key string) ([]string, error) {
	const op = "get labels"
	res, err := c.do(ctx, c.rc, op, token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("photo", app.NormalizePhotoKey(key)).Get("/labels")
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Labels []string `json:"labels"`
	}
	if err := decode(op, res, &out); err != nil {
		return nil, err
	}
	if out.Labels == nil {
		out.Labels = []string{}
	}
	return out.Labels, nil
}

type photoRecord struct {
	Photo       string   `json:"photo"`
	Labels      []string `json:"labels"`
	AlbumID     *string  `json:"albumId"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	UploadedAt  *string  `json:"uploadedAt"`
	DownloadURL string   `json:"download_url"`
	IsFavorite  bool     `json:"isFavorite"`
}

var uploadedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseUploadedAt(s *string) null.Time {
	if s == nil || *s == "" {
		return null.Time{}
	}
	for _, layout := range uploadedAtLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return null.TimeFrom(t)
		}
	}
	return null.Time{}
}

func (r photoRecord) toPhoto() app.Photo {
	p := app.Photo{
		Key:         r.Photo,
		Labels:      r.Labels,
		Description: r.Description,
		Location:    r.Location,
		UploadedAt:  parseUploadedAt(r.UploadedAt),
		DownloadURL: r.DownloadURL,
		IsFavorite:  r.IsFavorite,
	}
	if p.Labels == nil {
		p.Labels = []string{}
	}
	if r.AlbumID != nil {
		p.AlbumID = app.AlbumRef(*r.AlbumID)
	}
	return p
}

// ListPhotos lists every photo of the user, or those of albumID when set.
// Missing fields are filled with their defaults.
func (c *Client) ListPhotos(ctx context.Context, token, albumID string) ([]app.Photo, error) {
	const op = "list photos"
	res, err := c.do(ctx, c.rc, op, token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		if albumID != "" {
			r.SetQueryParam("albumId", albumID)
		}
		return r.Get("/photos")
	})
	if err != nil {
		return nil, err
	}
	var records []photoRecord
	if err := decode(op, res, &records); err != nil {
		return nil, err
	}
	photos := make([]app.Photo, 0, len(records))
	for _, r := range records {
		photos = append(photos, r.toPhoto())
	}
	return photos, nil
}

func (c *Client) DeletePhoto(ctx context.Context, token, key string) error {
	_, err := c.do(ctx, c.rc, "delete photo", token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]string{"photo": app.NormalizePhotoKey(key)}).Delete("/photos")
	})
	return err
}

// ToggleFavorite asks for the negation of current and returns the value the
// server stored, falling back to the requested one when none is echoed.
func (c *Client) ToggleFavorite(ctx context.Context, token, key string, current bool) (bool, error) {
	const op = "toggle favorite"
	want := !current
	res, err := c.do(ctx, c.rc, op, token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]interface{}{
			"photo":      app.NormalizePhotoKey(key),
			"isFavorite": want,
		}).Post("/favorite")
	})
	if err != nil {
		return current, err
	}
	var out struct {
		IsFavorite *bool `json:"isFavorite"`
	}
	if err := decode(op, res, &out); err != nil {
		return current, err
	}
	if out.IsFavorite == nil {
		return want, nil
	}
	return *out.IsFavorite, nil
}

func (c *Client) GetProfilePhoto(ctx context.Context, token string) (string, error) {
	const op = "get profile photo"
	res, err := c.do(ctx, c.rc, op, token, rawAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/get-profile-photo")
	})
	if err != nil {
		return "", err
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := decode(op, res, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) UploadProfilePhoto(ctx context.Context, token string, image []byte) error {
	_, err := c.do(ctx, c.rc, "upload profile photo", token, rawAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]string{
			"base64": base64.StdEncoding.EncodeToString(image),
		}).Post("/upload-profile-photo")
	})
	return err
}

// AskChatBot sends history followed by input and returns the bot's reply.
func (c *Client) AskChatBot(ctx context.Context, token, input string, history []app.ChatMessage) (string, error) {
	const op = "ask chatbot"
	messages := make([]app.ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, app.ChatMessage{Role: app.RoleUser, Text: input})
	res, err := c.do(ctx, c.chat, op, token, bearerAuth, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]interface{}{"messages": messages}).Post("/chatbot")
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Reply string `json:"reply"`
	}
	if err := decode(op, res, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}
