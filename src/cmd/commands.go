package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"photogallery/src/api"
	"photogallery/src/app"
	"photogallery/src/server"
)

func readImage(path string) (app.SourceImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return app.SourceImage{}, errors.Wrapf(err, "read %s", path)
	}
	return app.SourceImage{
		Name:        filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

func (c *cli) compressor() app.ImageCompressor {
	return app.ImageCompressor{MaxDimension: c.config.Upload.MaxDimension, MaxBytes: c.config.Upload.MaxBytes}
}

func (c *cli) notifier() app.Notifier {
	return app.LogNotifier{Log: c.log}
}

func printPhotos(w io.Writer, photos []app.Photo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tUPLOADED\tFAV\tALBUM\tLABELS\tDESCRIPTION")
	for _, p := range photos {
		uploaded := "-"
		if p.UploadedAt.Valid {
			uploaded = p.UploadedAt.Time.Local().Format("2006-01-02 15:04")
		}
		fav := ""
		if p.IsFavorite {
			fav = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Key, uploaded, fav, p.AlbumID.ValueOrZero(), strings.Join(p.Labels, ","), p.Description)
	}
	_ = tw.Flush()
}

func (c *cli) loginCommand() *cobra.Command {
	var username, password, token string
	command := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withState(func(state *app.AppContext) error {
				if token == "" {
					if c.config.Auth.Host == "" {
						return errors.New("AUTH_HOST is not set, pass --token or use `gallery dev-token`")
					}
					var err error
					token, err = api.Login(cmd.Context(), api.LoginConfig{
						Issuer:       c.config.Auth.Host,
						ClientID:     c.config.Auth.ID,
						ClientSecret: c.config.Auth.Secret,
						Scopes:       c.config.Auth.Scopes,
					}, username, password)
					if err != nil {
						return err
					}
				}
				session := app.ParseSession(token)
				if !session.Valid(c.now()) {
					return errors.Wrap(app.ErrUnauthenticated, "token expired")
				}
				state.Token = session.Token
				if _, err := app.RefreshProfilePhoto(cmd.Context(), c.client(), state); err != nil {
					c.log.WithError(err).Debug("profile photo not available")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", session.Subject)
				return nil
			})
		},
	}
	command.Flags().StringVarP(&username, "username", "u", "", "account name")
	command.Flags().StringVarP(&password, "password", "p", "", "account password")
	command.Flags().StringVar(&token, "token", "", "store this token instead of signing in")
	return command
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and all local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withState(func(state *app.AppContext) error {
				return state.Clear()
			})
		},
	}
}

func (c *cli) albumsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "albums",
		Short: "Manage albums",
	}
	command.AddCommand(
		&cobra.Command{
			Use:  "list",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withSession(func(_ *app.AppContext, token string) error {
					gallery := app.NewGallery(c.client(), c.notifier(), c.log)
					if err := gallery.Load(cmd.Context(), token, ""); err != nil {
						return err
					}
					for _, a := range gallery.Albums() {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", a.ID, a.Name)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:  "create <name>",
			Args: cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withSession(func(_ *app.AppContext, token string) error {
					gallery := app.NewGallery(c.client(), c.notifier(), c.log)
					album, err := gallery.CreateAlbum(cmd.Context(), token, strings.Join(args, " "))
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), album.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:  "delete <id>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withSession(func(_ *app.AppContext, token string) error {
					gallery := app.NewGallery(c.client(), c.notifier(), c.log)
					if err := gallery.Load(cmd.Context(), token, ""); err != nil {
						return err
					}
					return gallery.DeleteAlbum(cmd.Context(), token, args[0])
				})
			},
		},
	)
	return command
}

func (c *cli) photosCommand() *cobra.Command {
	var album, search string
	var byDay bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List photos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(func(_ *app.AppContext, token string) error {
				gallery := app.NewGallery(c.client(), c.notifier(), c.log)
				if err := gallery.Load(cmd.Context(), token, album); err != nil {
					return err
				}
				photos := gallery.Search(search)
				if !byDay {
					printPhotos(cmd.OutOrStdout(), photos)
					return nil
				}
				for _, group := range app.GroupByDay(photos, time.Local) {
					fmt.Fprintf(cmd.OutOrStdout(), "== %s (%d)\n", app.DayLabel(group.Day), len(group.Photos))
					printPhotos(cmd.OutOrStdout(), group.Photos)
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&album, "album", "", "only photos of this album id")
	list.Flags().StringVar(&search, "search", "", "match description or labels")
	list.Flags().BoolVar(&byDay, "by-day", false, "group by upload day")

	command := &cobra.Command{Use: "photos", Short: "Browse photos"}
	command.AddCommand(list)
	return command
}

func (c *cli) favoritesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "List favorite photos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(func(_ *app.AppContext, token string) error {
				gallery := app.NewGallery(c.client(), c.notifier(), c.log)
				if err := gallery.Load(cmd.Context(), token, ""); err != nil {
					return err
				}
				printPhotos(cmd.OutOrStdout(), gallery.Favorites())
				return nil
			})
		},
	}
}

func (c *cli) uploadCommand() *cobra.Command {
	var form app.UploadForm
	command := &cobra.Command{
		Use:   "upload <file>",
		Short: "Compress, upload and analyze a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := readImage(args[0])
			if err != nil {
				return err
			}
			form.File = &img
			return c.withSession(func(_ *app.AppContext, token string) error {
				client := c.client()
				waiter, err := c.labelWaiter(client)
				if err != nil {
					return err
				}
				uploader := app.NewUploader(client, c.compressor(), waiter, nil, c.notifier(), c.log)
				photo, err := uploader.Upload(cmd.Context(), token, &form)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", photo.Key, strings.Join(photo.Labels, ","))
				return nil
			})
		},
	}
	command.Flags().StringVar(&form.AlbumID, "album", "", "album id")
	command.Flags().StringVar(&form.Description, "description", "", "free text description")
	command.Flags().StringVar(&form.Location, "location", "", "where the photo was taken")
	return command
}

func (c *cli) favoriteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <key>",
		Short: "Toggle the favorite flag of a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(_ *app.AppContext, token string) error {
				gallery := app.NewGallery(c.client(), c.notifier(), c.log)
				if err := gallery.Load(cmd.Context(), token, ""); err != nil {
					return err
				}
				fav, err := gallery.ToggleFavorite(cmd.Context(), token, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "favorite: %t\n", fav)
				return nil
			})
		},
	}
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(_ *app.AppContext, token string) error {
				gallery := app.NewGallery(c.client(), c.notifier(), c.log)
				if err := gallery.Load(cmd.Context(), token, ""); err != nil {
					return err
				}
				return gallery.DeletePhoto(cmd.Context(), token, args[0])
			})
		},
	}
}

func (c *cli) profileCommand() *cobra.Command {
	command := &cobra.Command{Use: "profile", Short: "Show or change the profile photo"}
	command.AddCommand(
		&cobra.Command{
			Use:  "show",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withSession(func(state *app.AppContext, _ string) error {
					u, err := app.RefreshProfilePhoto(cmd.Context(), c.client(), state)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), u)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:  "set <file>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				img, err := readImage(args[0])
				if err != nil {
					return err
				}
				return c.withSession(func(state *app.AppContext, _ string) error {
					u, err := app.SetProfilePhoto(cmd.Context(), c.client(), c.compressor(), state, img)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), u)
					return nil
				})
			},
		},
	)
	return command
}

func (c *cli) chatCommand() *cobra.Command {
	var reset bool
	command := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(state *app.AppContext, _ string) error {
				if reset {
					state.ChatHistory = nil
				}
				state.ChatbotOpen = true
				reply, err := app.Ask(cmd.Context(), c.client(), state, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply)
				return nil
			})
		},
	}
	command.Flags().BoolVar(&reset, "reset", false, "start a new conversation")
	return command
}

func (c *cli) themeCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "theme dark|light",
		Short:     "Switch the color theme",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"dark", "light"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withState(func(state *app.AppContext) error {
				state.DarkMode = args[0] == "dark"
				fmt.Fprintf(cmd.OutOrStdout(), "theme: %s\n", args[0])
				return nil
			})
		},
	}
}

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gallery backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logrus.New()
			log.SetFormatter(&logrus.JSONFormatter{})
			log.SetLevel(c.log.GetLevel())
			return server.RunServer(cmd.Context(), c.config, log.WithField("service", c.config.Server.Name))
		},
	}
}

func (c *cli) devTokenCommand() *cobra.Command {
	var ttl time.Duration
	command := &cobra.Command{
		Use:   "dev-token <subject>",
		Short: "Sign a token the backend accepts when no identity provider is configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.NewJWTAccessToken(c.config.Auth.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	command.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return command
}
