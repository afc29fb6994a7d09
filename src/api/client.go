// Package api is the HTTP client of the photo gallery backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"photogallery/src/app"
)

const requestIDHeader = "X-Request-ID"

// RequestError is returned for every non-2xx answer.
type RequestError struct {
	Op     string
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s: request failed with status %d: %s", e.Op, e.Status, body)
}

// Is lets callers match auth and lookup failures without knowing statuses.
func (e *RequestError) Is(target error) bool {
	switch target {
	case app.ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case app.ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

type Config struct {
	BaseURL string
	// ChatURL hosts the chatbot endpoint.
	ChatURL string
	// Timeout bounds every request. Zero means no timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues one HTTP request per operation.
type Client struct {
	rc   *resty.Client
	chat *resty.Client
	log  logrus.FieldLogger
}

func NewClient(cfg Config, log logrus.FieldLogger) *Client {
	newResty := func(base string) *resty.Client {
		var rc *resty.Client
		if cfg.HTTPClient != nil {
			rc = resty.NewWithClient(cfg.HTTPClient)
		} else {
			rc = resty.New()
		}
		rc.SetBaseURL(strings.TrimRight(base, "/"))
		if cfg.Timeout > 0 {
			rc.SetTimeout(cfg.Timeout)
		}
		return rc
	}
	chatURL := cfg.ChatURL
	if chatURL == "" {
		chatURL = cfg.BaseURL
	}
	return &Client{
		rc:   newResty(cfg.BaseURL),
		chat: newResty(chatURL),
		log:  log,
	}
}

type auth int

const (
	noAuth auth = iota
	bearerAuth
	rawAuth
)

func (c *Client) do(ctx context.Context, rc *resty.Client, op, token string, a auth, fn func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	id := uuid.NewString()
	r := rc.R().SetContext(ctx).SetHeader(requestIDHeader, id)
	switch a {
	case bearerAuth:
		r.SetHeader("Authorization", "Bearer "+token)
	case rawAuth:
		r.SetHeader("Authorization", token)
	}
	log := c.log.WithFields(logrus.Fields{"op": op, "request_id": id})

	res, err := fn(r)
	if err != nil {
		log.WithError(err).Debug("request failed")
		return nil, errors.Wrap(err, op)
	}
	log = log.WithFields(logrus.Fields{"status": res.StatusCode(), "took": res.Time()})
	if res.IsError() {
		log.Debug("request rejected")
		return res, &RequestError{Op: op, Status: res.StatusCode(), Body: res.String()}
	}
	log.Debug("request done")
	return res, nil
}

// decode unmarshals a JSON body into out. Empty bodies leave out untouched.
func decode(op string, res *resty.Response, out interface{}) error {
	body := res.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(body, out), "%s: decode response", op)
}
