package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gopkg.in/guregu/null.v3"

	"photogallery/src/app"
)

const (
	tableAlbums  = "albums"
	tablePhotos  = "photos"
	tableUploads = "uploads"
)

const schema = `
CREATE TABLE IF NOT EXISTS albums (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS photos (
	photo_key   TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	album_id    TEXT,
	description TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	labels      TEXT NOT NULL DEFAULT '[]',
	uploaded_at TIMESTAMP,
	is_favorite BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS photos_owner_album ON photos (owner, album_id);
CREATE TABLE IF NOT EXISTS uploads (
	photo_key  TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// upsertPhoto never moves a record to another owner: the update only
// applies when the stored owner matches.
const upsertPhoto = `ON CONFLICT(photo_key) DO UPDATE SET
	album_id = excluded.album_id,
	description = excluded.description,
	location = excluded.location,
	labels = excluded.labels,
	uploaded_at = excluded.uploaded_at,
	is_favorite = excluded.is_favorite
WHERE photos.owner = excluded.owner`

var photoColumns = []string{
	"photo_key", "owner", "album_id", "description", "location",
	"labels", "uploaded_at", "is_favorite",
}

type albumRow struct {
	ID        string    `db:"id"`
	Owner     string    `db:"owner"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type photoRow struct {
	Key         string      `db:"photo_key"`
	Owner       string      `db:"owner"`
	AlbumID     null.String `db:"album_id"`
	Description string      `db:"description"`
	Location    string      `db:"location"`
	Labels      string      `db:"labels"`
	UploadedAt  null.Time   `db:"uploaded_at"`
	IsFavorite  bool        `db:"is_favorite"`
}

func (r photoRow) toPhoto() app.Photo {
	labels := []string{}
	_ = json.Unmarshal([]byte(r.Labels), &labels)
	if labels == nil {
		labels = []string{}
	}
	return app.Photo{
		Key:         r.Key,
		Labels:      labels,
		AlbumID:     r.AlbumID,
		Description: r.Description,
		Location:    r.Location,
		UploadedAt:  r.UploadedAt,
		IsFavorite:  r.IsFavorite,
	}
}

func encodeLabels(labels []string) string {
	if labels == nil {
		labels = []string{}
	}
	raw, _ := json.Marshal(labels)
	return string(raw)
}

// MetaStore keeps album and photo records of the backend, scoped by owner.
type MetaStore struct {
	sqldb *sqlx.DB
}

// NewMetaStore opens the sqlite database at dsn and creates missing tables.
func NewMetaStore(dsn string) (*MetaStore, error) {
	sqldb, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open metadata db")
	}
	// sqlite serializes writers; one connection also keeps :memory: shared.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec(schema); err != nil {
		_ = sqldb.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &MetaStore{sqldb: sqldb}, nil
}

func (m *MetaStore) Close() error {
	return m.sqldb.Close()
}

func (m *MetaStore) exec(ctx context.Context, what string, b sq.Sqlizer) (sql.Result, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrapf(err, "%s build query into SQL string", what)
	}
	res, err := m.sqldb.ExecContext(ctx, q, args...)
	return res, errors.Wrapf(err, "execute %s query", what)
}

func (m *MetaStore) execOne(ctx context.Context, what string, b sq.Sqlizer) error {
	res, err := m.exec(ctx, what, b)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "%s rows affected", what)
	}
	if n == 0 {
		return app.ErrNotFound
	}
	return nil
}

func (m *MetaStore) CreateAlbum(ctx context.Context, owner, id, name string) error {
	_, err := m.exec(ctx, "create album", sq.Insert(tableAlbums).
		Columns("id", "owner", "name", "created_at").
		Values(id, owner, name, time.Now().UTC()))
	return err
}

func (m *MetaStore) ListAlbums(ctx context.Context, owner string) ([]app.Album, error) {
	q, args, err := sq.Select("id", "owner", "name", "created_at").
		From(tableAlbums).
		Where(sq.Eq{"owner": owner}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "list albums build query into SQL string")
	}
	var rows []albumRow
	if err := m.sqldb.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "execute list albums query")
	}
	albums := make([]app.Album, 0, len(rows))
	for _, r := range rows {
		albums = append(albums, app.Album{ID: r.ID, Name: r.Name})
	}
	return albums, nil
}

func (m *MetaStore) DeleteAlbum(ctx context.Context, owner, id string) error {
	return m.execOne(ctx, "delete album", sq.Delete(tableAlbums).
		Where(sq.Eq{"id": id, "owner": owner}))
}

// ReserveUpload records that key was handed out to owner.
func (m *MetaStore) ReserveUpload(ctx context.Context, owner, key string) error {
	_, err := m.exec(ctx, "reserve upload", sq.Insert(tableUploads).
		Columns("photo_key", "owner", "created_at").
		Values(key, owner, time.Now().UTC()))
	return err
}

// CheckUpload returns app.ErrNotFound unless key was reserved by owner.
func (m *MetaStore) CheckUpload(ctx context.Context, owner, key string) error {
	q, args, err := sq.Select("COUNT(*)").
		From(tableUploads).
		Where(sq.Eq{"photo_key": key, "owner": owner}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "check upload build query into SQL string")
	}
	var n int
	if err := m.sqldb.GetContext(ctx, &n, q, args...); err != nil {
		return errors.Wrap(err, "execute check upload query")
	}
	if n == 0 {
		return app.ErrNotFound
	}
	return nil
}

// PutPhoto inserts p or updates the owner's record with the same key. A key
// held by another owner yields app.ErrNotFound and is left untouched.
func (m *MetaStore) PutPhoto(ctx context.Context, owner string, p app.Photo) error {
	return m.execOne(ctx, "put photo", sq.Insert(tablePhotos).
		Columns(photoColumns...).
		Values(p.Key, owner, p.AlbumID, p.Description, p.Location,
			encodeLabels(p.Labels), p.UploadedAt, p.IsFavorite).
		Suffix(upsertPhoto))
}

func (m *MetaStore) SetLabels(ctx context.Context, owner, key string, labels []string) error {
	return m.execOne(ctx, "set labels", sq.Update(tablePhotos).
		Set("labels", encodeLabels(labels)).
		Where(sq.Eq{"photo_key": key, "owner": owner}))
}

func (m *MetaStore) SetFavorite(ctx context.Context, owner, key string, favorite bool) error {
	return m.execOne(ctx, "set favorite", sq.Update(tablePhotos).
		Set("is_favorite", favorite).
		Where(sq.Eq{"photo_key": key, "owner": owner}))
}

func (m *MetaStore) GetPhoto(ctx context.Context, owner, key string) (app.Photo, error) {
	q, args, err := sq.Select(photoColumns...).
		From(tablePhotos).
		Where(sq.Eq{"photo_key": key, "owner": owner}).
		ToSql()
	if err != nil {
		return app.Photo{}, errors.Wrap(err, "get photo build query into SQL string")
	}
	var row photoRow
	if err := m.sqldb.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return app.Photo{}, app.ErrNotFound
		}
		return app.Photo{}, errors.Wrap(err, "execute get photo query")
	}
	return row.toPhoto(), nil
}

// ListPhotos returns the owner's photos, newest first. An empty albumID
// lists every photo.
func (m *MetaStore) ListPhotos(ctx context.Context, owner, albumID string) ([]app.Photo, error) {
	where := sq.Eq{"owner": owner}
	if albumID != "" {
		where["album_id"] = albumID
	}
	q, args, err := sq.Select(photoColumns...).
		From(tablePhotos).
		Where(where).
		OrderBy("uploaded_at DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "list photos build query into SQL string")
	}
	var rows []photoRow
	if err := m.sqldb.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "execute list photos query")
	}
	photos := make([]app.Photo, 0, len(rows))
	for _, r := range rows {
		photos = append(photos, r.toPhoto())
	}
	return photos, nil
}

func (m *MetaStore) DeletePhoto(ctx context.Context, owner, key string) error {
	return m.execOne(ctx, "delete photo", sq.Delete(tablePhotos).
		Where(sq.Eq{"photo_key": key, "owner": owner}))
}
