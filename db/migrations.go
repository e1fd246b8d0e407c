package db

import (
	"database/sql"

	"github.com/charmbracelet/log"
)

const (
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors(
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		uri TEXT UNIQUE NOT NULL,
		local INTEGER DEFAULT 0,
		profile TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_actors_name ON actors(name);
	`

	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS followers(
		id TEXT NOT NULL PRIMARY KEY,
		owner_uri TEXT NOT NULL,
		follower_uri TEXT NOT NULL,
		inbox_uri TEXT NOT NULL,
		follow_uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(owner_uri, follower_uri)
	)`

	sqlCreateFollowersIndices = `
		CREATE INDEX IF NOT EXISTS idx_followers_owner ON followers(owner_uri);
	`

	sqlCreateNotesTable = `CREATE TABLE IF NOT EXISTS notes(
		id TEXT NOT NULL PRIMARY KEY,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		tags TEXT,
		object_uri TEXT UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateNotesIndices = `
		CREATE INDEX IF NOT EXISTS idx_notes_author ON notes(author);
		CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at DESC);
	`

	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities(
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT,
		raw_json TEXT NOT NULL,
		local INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_uri ON activities(activity_uri);
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
	`
)

// Migrate creates the schema. Safe to run on every startup.
func (db *DB) Migrate() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			sqlCreateActorsTable,
			sqlCreateFollowersTable,
			sqlCreateNotesTable,
			sqlCreateActivitiesTable,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}

		for _, stmt := range []string{
			sqlCreateActorsIndices,
			sqlCreateFollowersIndices,
			sqlCreateNotesIndices,
			sqlCreateActivitiesIndices,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				log.Warn("failed to create index", "err", err)
			}
		}

		return nil
	})
}
