package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/flakm/fedipage/domain"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB wraps the sqlite connection pool. Constructed once in main and
// threaded into every component that needs persistence.
type DB struct {
	db *sql.DB
}

const (
	// Actors are persisted as a JSON profile blob keyed by their stable
	// URI; the name column exists for the local profile lookup path.
	sqlUpsertActor = `INSERT INTO actors(id, name, uri, local, profile, updated_at) VALUES (?, ?, ?, ?, ?, ?)
                        ON CONFLICT(uri) DO UPDATE SET name = excluded.name, local = excluded.local,
                        profile = excluded.profile, updated_at = excluded.updated_at`
	sqlSelectActorByURI  = `SELECT profile FROM actors WHERE uri = ?`
	sqlSelectActorByName = `SELECT profile FROM actors WHERE name = ? AND local = 1`

	// Follower edges. The conditional insert keeps duplicate Follow
	// requests from creating duplicate edges, even under concurrency.
	sqlInsertFollower = `INSERT INTO followers(id, owner_uri, follower_uri, inbox_uri, follow_uri, created_at) VALUES (?, ?, ?, ?, ?, ?)
                        ON CONFLICT(owner_uri, follower_uri) DO NOTHING`
	sqlDeleteFollower          = `DELETE FROM followers WHERE owner_uri = ? AND follower_uri = ?`
	sqlSelectFollowersByOwner  = `SELECT id, owner_uri, follower_uri, inbox_uri, follow_uri, created_at FROM followers WHERE owner_uri = ?`
	sqlSelectFollowerAddresses = `SELECT DISTINCT inbox_uri FROM followers WHERE owner_uri = ?`

	sqlInsertNote          = `INSERT INTO notes(id, author, content, tags, object_uri, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectNoteById      = `SELECT id, author, content, tags, object_uri, created_at FROM notes WHERE id = ?`
	sqlSelectNotesByAuthor = `SELECT id, author, content, tags, object_uri, created_at FROM notes WHERE author = ? ORDER BY created_at DESC`

	sqlInsertActivity = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, local, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(activity_uri) DO NOTHING`
	sqlSelectActivityByURI = `SELECT id, activity_uri, activity_type, actor_uri, object_uri, raw_json, local, created_at FROM activities WHERE activity_uri = ?`
)

// Open opens the database at the given path and prepares the connection
// pool for concurrent inbox/delivery traffic.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	var journalMode string
	if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		log.Warn("failed to enable WAL mode", "err", err)
	} else {
		log.Info("database journal mode", "mode", journalMode)
	}

	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA cache_size = -64000")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")
	sqlDB.Exec("PRAGMA foreign_keys = ON")

	return &DB{db: sqlDB}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// UpsertActor inserts or refreshes an actor record, keyed by URI.
func (db *DB) UpsertActor(actor *domain.Actor) error {
	profile, err := json.Marshal(actor)
	if err != nil {
		return err
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertActor,
			uuid.New().String(),
			actor.Name,
			actor.URI,
			actor.Local,
			string(profile),
			time.Now(),
		)
		return err
	})
}

func (db *DB) ActorByURI(uri string) (*domain.Actor, error) {
	return db.scanActor(db.db.QueryRow(sqlSelectActorByURI, uri))
}

func (db *DB) ActorByName(name string) (*domain.Actor, error) {
	return db.scanActor(db.db.QueryRow(sqlSelectActorByName, name))
}

func (db *DB) scanActor(row *sql.Row) (*domain.Actor, error) {
	var profile string
	err := row.Scan(&profile)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var actor domain.Actor
	if err := json.Unmarshal([]byte(profile), &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

// AddFollower inserts a follower edge. Inserting an existing
// (owner, follower) pair is a no-op, not an error.
func (db *DB) AddFollower(f *domain.Follower) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollower,
			f.Id.String(),
			f.OwnerURI,
			f.FollowerURI,
			f.InboxURI,
			f.FollowURI,
			f.CreatedAt,
		)
		return err
	})
}

// RemoveFollower deletes the edge if present; no-op if absent.
func (db *DB) RemoveFollower(ownerURI, followerURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollower, ownerURI, followerURI)
		return err
	})
}

func (db *DB) FollowersByOwner(ownerURI string) ([]domain.Follower, error) {
	rows, err := db.db.Query(sqlSelectFollowersByOwner, ownerURI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var followers []domain.Follower
	for rows.Next() {
		var f domain.Follower
		var idStr string
		if err := rows.Scan(&idStr, &f.OwnerURI, &f.FollowerURI, &f.InboxURI, &f.FollowURI, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Id, _ = uuid.Parse(idStr)
		followers = append(followers, f)
	}
	return followers, rows.Err()
}

// FollowerAddresses returns the deduplicated delivery addresses for an
// owner's followers, in no guaranteed order.
func (db *DB) FollowerAddresses(ownerURI string) ([]string, error) {
	rows, err := db.db.Query(sqlSelectFollowerAddresses, ownerURI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, rows.Err()
}

func (db *DB) CreateNote(note *domain.Note) error {
	tags, err := json.Marshal(note.Tags)
	if err != nil {
		return err
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertNote,
			note.Id.String(),
			note.CreatedBy,
			note.Content,
			string(tags),
			note.ObjectURI,
			note.CreatedAt,
		)
		return err
	})
}

func (db *DB) NoteById(id uuid.UUID) (*domain.Note, error) {
	row := db.db.QueryRow(sqlSelectNoteById, id.String())
	return scanNote(row)
}

func (db *DB) NotesByAuthor(author string) ([]domain.Note, error) {
	rows, err := db.db.Query(sqlSelectNotesByAuthor, author)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		var note domain.Note
		var idStr, tags string
		if err := rows.Scan(&idStr, &note.CreatedBy, &note.Content, &tags, &note.ObjectURI, &note.CreatedAt); err != nil {
			return nil, err
		}
		note.Id, _ = uuid.Parse(idStr)
		note.Local = true
		json.Unmarshal([]byte(tags), &note.Tags)
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func scanNote(row *sql.Row) (*domain.Note, error) {
	var note domain.Note
	var idStr, tags string
	err := row.Scan(&idStr, &note.CreatedBy, &note.Content, &tags, &note.ObjectURI, &note.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	note.Id, _ = uuid.Parse(idStr)
	note.Local = true
	json.Unmarshal([]byte(tags), &note.Tags)
	return &note, nil
}

// CreateActivity records a processed activity. Re-inserting the same
// activity URI is a no-op, which is what makes redelivery idempotent.
func (db *DB) CreateActivity(rec *domain.ActivityRecord) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertActivity,
			rec.Id.String(),
			rec.ActivityURI,
			rec.ActivityType,
			rec.ActorURI,
			rec.ObjectURI,
			rec.RawJSON,
			rec.Local,
			rec.CreatedAt,
		)
		return err
	})
}

func (db *DB) ActivityByURI(uri string) (*domain.ActivityRecord, error) {
	row := db.db.QueryRow(sqlSelectActivityByURI, uri)
	var rec domain.ActivityRecord
	var idStr string
	err := row.Scan(&idStr, &rec.ActivityURI, &rec.ActivityType, &rec.ActorURI, &rec.ObjectURI, &rec.RawJSON, &rec.Local, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Id, _ = uuid.Parse(idStr)
	return &rec, nil
}

// wrapTransaction runs the given function within a transaction, retrying
// on SQLITE_BUSY.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("error starting transaction", "err", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		if err = tx.Commit(); err != nil {
			log.Error("error committing transaction", "err", err)
			return err
		}
		break
	}
	return nil
}
