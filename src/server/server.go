package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	app "photogallery/src/app"
	cfg "photogallery/src/configuration"
	db "photogallery/src/repository"
)

const (
	labelTimeout    = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Dependencies are the collaborators NewRouter wires into the handlers.
type Dependencies struct {
	Config   *cfg.Properties
	Store    MetaStore
	Objects  ObjectStore
	Labeler  Labeler
	Verifier TokenVerifier
	Log      logrus.FieldLogger
}

// Router is the gin engine plus the handlers that own background work.
type Router struct {
	*gin.Engine
	Photos *AppHandler
	Events *Hub
}

func NewRouter(deps Dependencies) *Router {
	config := deps.Config
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Cache-Control", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if config.Server.Pprof {
		pprof.Register(router)
	}

	hub := NewHub(deps.Log)
	auth := NewAuthHandler(deps.Verifier, deps.Log)
	photos := NewS3Handler(deps.Store, deps.Objects, deps.Labeler, hub, config.S3.PresignExpiry, labelTimeout, deps.Log)
	external := NewExternalHandler(config, deps.Log)

	router.GET("/health", auth.GetHealth)

	authorized := router.Group("/", auth.Authorize)
	authorized.GET("/account", auth.Account)
	authorized.GET("/events", hub.ServeEvents)

	authorized.POST("/albums", photos.PostAlbum)
	authorized.GET("/albums", photos.GetAlbums)
	authorized.DELETE("/albums/:id", photos.DeleteAlbum)

	authorized.GET("/upload-url", photos.GetUploadURL)
	authorized.POST("/analyze", photos.PostAnalyze)
	authorized.GET("/labels", photos.GetLabels)
	authorized.GET("/photos", photos.GetPhotos)
	authorized.DELETE("/photos", photos.DeletePhoto)
	authorized.POST("/favorite", photos.PostFavorite)

	authorized.GET("/get-profile-photo", photos.GetProfilePhoto)
	authorized.POST("/upload-profile-photo", photos.PostProfilePhoto)

	authorized.POST("/chatbot", external.Chatbot)

	router.NoRoute(func(ctx *gin.Context) { ctx.JSON(http.StatusNotFound, gin.H{}) })
	return &Router{Engine: router, Photos: photos, Events: hub}
}

// RunServer serves the gallery API until ctx is cancelled.
func RunServer(ctx context.Context, config *cfg.Properties, log logrus.FieldLogger) error {
	clientS3, err := app.NewMinioS3Client(
		config.S3.Host,
		config.S3.AccessKey,
		config.S3.SecretKey,
		config.S3.Bucket,
		config.S3.UseSSL,
		config.S3.PresignExpiry,
		log)
	if err != nil {
		return errors.Wrap(err, "could not connect to minio")
	}
	store, err := db.NewMetaStore(config.Server.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	verifier, err := NewTokenVerifier(ctx, config)
	if err != nil {
		return err
	}
	deps := Dependencies{
		Config:   config,
		Store:    store,
		Objects:  clientS3,
		Verifier: verifier,
		Log:      log,
	}
	// A typed nil would defeat the labeler != nil check.
	if labeler := NewMLLabeler(config); labeler != nil {
		deps.Labeler = labeler
	} else {
		log.Warn("ML_HOST is not set, photos will not be labelled")
	}
	router := NewRouter(deps)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", config.Server.Port),
		Handler:     router,
		ReadTimeout: config.Server.ReadTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	router.Photos.WaitLabelling()
	log.Info("server stopped")
	return nil
}
