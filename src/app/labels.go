package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EventLabelsReady is pushed on the events channel when analysis finished.
const EventLabelsReady = "labels.ready"

// LabelEvent is the payload of the events channel.
type LabelEvent struct {
	Type   string   `json:"type"`
	Photo  string   `json:"photo"`
	Labels []string `json:"labels"`
}

// LabelFetcher reads the labels currently stored for a photo.
type LabelFetcher interface {
	GetLabels(ctx context.Context, token, key string) ([]string, error)
}

// LabelWaiter waits for the analysis of a freshly uploaded photo. An empty
// result with a nil error means analysis did not produce labels in time.
type LabelWaiter interface {
	WaitLabels(ctx context.Context, token, key string) ([]string, error)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FixedDelayWaiter waits Delay and then fetches the labels once.
type FixedDelayWaiter struct {
	Fetcher LabelFetcher
	Delay   time.Duration
}

func (w *FixedDelayWaiter) WaitLabels(ctx context.Context, token, key string) ([]string, error) {
	if err := sleep(ctx, w.Delay); err != nil {
		return nil, err
	}
	labels, err := w.Fetcher.GetLabels(ctx, token, key)
	if errors.Is(err, ErrNotFound) {
		return []string{}, nil
	}
	return labels, err
}

// BackoffWaiter polls for labels with exponential backoff until some are
// returned or Attempts fetches were made.
type BackoffWaiter struct {
	Fetcher  LabelFetcher
	Min      time.Duration
	Max      time.Duration
	Attempts int
	Log      logrus.FieldLogger
}

func (w *BackoffWaiter) WaitLabels(ctx context.Context, token, key string) ([]string, error) {
	b := &backoff.Backoff{Min: w.Min, Max: w.Max, Factor: 2, Jitter: true}
	attempts := w.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err := sleep(ctx, b.Duration()); err != nil {
			return nil, err
		}
		labels, err := w.Fetcher.GetLabels(ctx, token, key)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, err
		case len(labels) > 0:
			return labels, nil
		}
		if w.Log != nil {
			w.Log.WithFields(logrus.Fields{"photo": key, "attempt": i + 1}).Debug("labels not ready")
		}
	}
	return []string{}, nil
}

// PushWaiter listens on the events websocket for the labels of key. When
// the channel cannot be opened it delegates to Fallback. When Timeout
// elapses without an event the labels are fetched once.
type PushWaiter struct {
	EventsURL string
	Dialer    *websocket.Dialer
	Fetcher   LabelFetcher
	Fallback  LabelWaiter
	Timeout   time.Duration
	Log       logrus.FieldLogger
}

func (w *PushWaiter) WaitLabels(ctx context.Context, token, key string) ([]string, error) {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := dialer.DialContext(ctx, w.EventsURL, header)
	if err != nil {
		if w.Log != nil {
			w.Log.WithError(err).Warn("events channel unavailable, polling instead")
		}
		return w.Fallback.WaitLabels(ctx, token, key)
	}
	defer conn.Close()

	// Analysis may have finished before the subscription existed.
	labels, err := w.Fetcher.GetLabels(ctx, token, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	case len(labels) > 0:
		return labels, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()
	events := make(chan LabelEvent)
	readErr := make(chan error, 1)
	go func() {
		for {
			var ev LabelEvent
			if err := conn.ReadJSON(&ev); err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-waitCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if ev.Type == EventLabelsReady && sameKey(ev.Photo, key) {
				return ev.Labels, nil
			}
		case err := <-readErr:
			if w.Log != nil {
				w.Log.WithError(err).Debug("events channel closed")
			}
			return w.fetchOnce(ctx, token, key)
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return w.fetchOnce(ctx, token, key)
		}
	}
}

func (w *PushWaiter) fetchOnce(ctx context.Context, token, key string) ([]string, error) {
	labels, err := w.Fetcher.GetLabels(ctx, token, key)
	if errors.Is(err, ErrNotFound) {
		return []string{}, nil
	}
	return labels, err
}
