package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"photogallery/src/api"
	"photogallery/src/app"
	cfg "photogallery/src/configuration"
	db "photogallery/src/repository"
)

// cli carries what every command needs. Stores are opened per command so
// the bolt file is not held while idle.
type cli struct {
	config    *cfg.Properties
	log       *logrus.Logger
	openStore func() (db.StateStore, error)
	now       func() time.Time
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func newCLI(config *cfg.Properties, log *logrus.Logger) *cli {
	return &cli{
		config:    config,
		log:       log,
		openStore: func() (db.StateStore, error) { return db.NewStateStore(config) },
		now:       time.Now,
	}
}

func (c *cli) client() *api.Client {
	return api.NewClient(api.Config{
		BaseURL: c.config.API.BaseURL,
		ChatURL: c.config.API.ChatURL,
		Timeout: c.config.API.Timeout,
	}, c.log)
}

// withState loads the local app context, runs fn and saves the context
// back.
func (c *cli) withState(fn func(state *app.AppContext) error) error {
	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	state, err := app.LoadAppContext(store)
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return state.Save()
}

// withSession is withState for commands that talk to the backend. A
// rejected or expired session wipes the local state.
func (c *cli) withSession(fn func(state *app.AppContext, token string) error) error {
	return c.withState(func(state *app.AppContext) error {
		session, err := state.Session(c.now())
		if err == nil {
			err = fn(state, session.Token)
		}
		if err != nil && app.KindOf(err) == app.KindAuth {
			if clearErr := state.Clear(); clearErr != nil {
				c.log.WithError(clearErr).Warn("clear local state")
			}
			return errors.Wrap(err, "run `gallery login` first")
		}
		return err
	})
}

// eventsURL maps the API base URL onto its websocket events endpoint.
func eventsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parse base URL")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	return u.String(), nil
}

func (c *cli) labelWaiter(client *api.Client) (app.LabelWaiter, error) {
	upload := c.config.Upload
	poll := &app.BackoffWaiter{
		Fetcher:  client,
		Min:      upload.PollMin,
		Max:      upload.PollMax,
		Attempts: upload.PollAttempts,
		Log:      c.log,
	}
	switch strings.ToLower(upload.LabelStrategy) {
	case "fixed":
		return &app.FixedDelayWaiter{Fetcher: client, Delay: upload.LabelDelay}, nil
	case "backoff", "":
		return poll, nil
	case "push":
		events, err := eventsURL(c.config.API.BaseURL)
		if err != nil {
			return nil, err
		}
		return &app.PushWaiter{
			EventsURL: events,
			Fetcher:   client,
			Fallback:  poll,
			Timeout:   time.Duration(upload.PollAttempts) * upload.PollMax,
			Log:       c.log,
		}, nil
	default:
		return nil, errors.Errorf("unknown label strategy %q", upload.LabelStrategy)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gallery",
		Short:         "Photo gallery client and companion backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		c.loginCommand(),
		c.logoutCommand(),
		c.albumsCommand(),
		c.photosCommand(),
		c.favoritesCommand(),
		c.uploadCommand(),
		c.favoriteCommand(),
		c.deleteCommand(),
		c.profileCommand(),
		c.chatCommand(),
		c.themeCommand(),
		c.serveCommand(),
		c.devTokenCommand(),
	)
	return root
}

func main() {
	config, err := cfg.ReadProperties()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := newLogger(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newCLI(config, log).rootCommand().ExecuteContext(ctx); err != nil {
		log.WithError(err).WithField("kind", app.KindOf(err)).Error("command failed")
		stop()
		os.Exit(1)
	}
}
