// Package persistence provides SQLite-based local save storage. A session
// restored from disk resumes progression and the last empire snapshot without
// needing the authoritative server.
package persistence

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/progression"
)

// ErrNoSave is returned when a load finds nothing for the player.
var ErrNoSave = errors.New("persistence: no saved state")

// DB wraps a SQLite connection for local game saves.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS progression (
		player_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (player_id, key)
	);

	CREATE TABLE IF NOT EXISTS unlocked_features (
		player_id TEXT NOT NULL,
		token TEXT NOT NULL,
		PRIMARY KEY (player_id, token)
	);

	CREATE TABLE IF NOT EXISTS achievements (
		player_id TEXT NOT NULL,
		achievement_id TEXT NOT NULL,
		progress REAL NOT NULL,
		unlocked INTEGER NOT NULL,
		unlocked_at TEXT,
		spec_json TEXT NOT NULL,
		PRIMARY KEY (player_id, achievement_id)
	);

	CREATE TABLE IF NOT EXISTS empire_snapshots (
		player_id TEXT PRIMARY KEY,
		snapshot BLOB NOT NULL,
		digest TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveProgression writes the player's level and experience as key/value rows.
func (db *DB) SaveProgression(playerID string, level, experience int) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows := map[string]string{
		"current_level":      fmt.Sprintf("%d", level),
		"current_experience": fmt.Sprintf("%d", experience),
		"last_updated":       time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range rows {
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO progression (player_id, key, value) VALUES (?, ?, ?)",
			playerID, k, v,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadProgression returns the saved level and experience, or ErrNoSave.
func (db *DB) LoadProgression(playerID string) (level, experience int, err error) {
	var lv, exp string
	err = db.conn.Get(&lv,
		"SELECT value FROM progression WHERE player_id = ? AND key = 'current_level'", playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNoSave
	}
	if err != nil {
		return 0, 0, err
	}
	err = db.conn.Get(&exp,
		"SELECT value FROM progression WHERE player_id = ? AND key = 'current_experience'", playerID)
	if err != nil {
		return 0, 0, err
	}
	fmt.Sscanf(lv, "%d", &level)
	fmt.Sscanf(exp, "%d", &experience)
	return level, experience, nil
}

// SaveUnlocks writes the unlocked feature tokens (full replace).
func (db *DB) SaveUnlocks(playerID string, tokens []string) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM unlocked_features WHERE player_id = ?", playerID); err != nil {
		return err
	}
	for _, tok := range tokens {
		_, err := tx.Exec(
			"INSERT INTO unlocked_features (player_id, token) VALUES (?, ?)",
			playerID, tok,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadUnlocks returns the saved feature tokens.
func (db *DB) LoadUnlocks(playerID string) ([]string, error) {
	var tokens []string
	err := db.conn.Select(&tokens,
		"SELECT token FROM unlocked_features WHERE player_id = ? ORDER BY token", playerID)
	return tokens, err
}

// SaveAchievements writes achievement progress (full replace).
func (db *DB) SaveAchievements(playerID string, list []*progression.Achievement) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM achievements WHERE player_id = ?", playerID); err != nil {
		return err
	}
	for _, a := range list {
		specJSON, _ := json.Marshal(a.Spec)

		unlocked := 0
		if a.Unlocked {
			unlocked = 1
		}
		unlockedAt := ""
		if !a.UnlockedAt.IsZero() {
			unlockedAt = a.UnlockedAt.UTC().Format(time.RFC3339)
		}

		_, err := tx.Exec(`INSERT INTO achievements
			(player_id, achievement_id, progress, unlocked, unlocked_at, spec_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			playerID, a.Spec.ID, a.Progress, unlocked, unlockedAt, string(specJSON),
		)
		if err != nil {
			return fmt.Errorf("insert achievement %s: %w", a.Spec.ID, err)
		}
	}

	return tx.Commit()
}

// LoadAchievements returns saved achievement progress, ready for
// Tracker.RestoreAchievements.
func (db *DB) LoadAchievements(playerID string) ([]*progression.Achievement, error) {
	rows, err := db.conn.Queryx(
		"SELECT progress, unlocked, unlocked_at, spec_json FROM achievements WHERE player_id = ?",
		playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*progression.Achievement
	for rows.Next() {
		var (
			progress   float64
			unlocked   int
			unlockedAt string
			specJSON   string
		)
		if err := rows.Scan(&progress, &unlocked, &unlockedAt, &specJSON); err != nil {
			return nil, err
		}

		a := &progression.Achievement{Progress: progress, Unlocked: unlocked != 0}
		if err := json.Unmarshal([]byte(specJSON), &a.Spec); err != nil {
			return nil, fmt.Errorf("decode achievement spec: %w", err)
		}
		if unlockedAt != "" {
			if t, err := time.Parse(time.RFC3339, unlockedAt); err == nil {
				a.UnlockedAt = t
			}
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// SaveSnapshot stores an LZ4-compressed empire view with a BLAKE3 digest of
// the uncompressed JSON.
func (db *DB) SaveSnapshot(view economy.EmpireView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	sum := blake3.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}

	_, err = db.conn.Exec(`INSERT OR REPLACE INTO empire_snapshots
		(player_id, snapshot, digest, saved_at) VALUES (?, ?, ?, ?)`,
		view.PlayerID, buf.Bytes(), digest, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// LoadSnapshot restores the saved empire view, verifying the stored digest.
func (db *DB) LoadSnapshot(playerID string) (economy.EmpireView, error) {
	var row struct {
		Snapshot []byte `db:"snapshot"`
		Digest   string `db:"digest"`
	}
	err := db.conn.Get(&row,
		"SELECT snapshot, digest FROM empire_snapshots WHERE player_id = ?", playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return economy.EmpireView{}, ErrNoSave
	}
	if err != nil {
		return economy.EmpireView{}, err
	}

	zr := lz4.NewReader(bytes.NewReader(row.Snapshot))
	data, err := io.ReadAll(zr)
	if err != nil {
		return economy.EmpireView{}, fmt.Errorf("decompress snapshot: %w", err)
	}

	sum := blake3.Sum256(data)
	if hex.EncodeToString(sum[:]) != row.Digest {
		return economy.EmpireView{}, fmt.Errorf("snapshot digest mismatch for %s", playerID)
	}

	var view economy.EmpireView
	if err := json.Unmarshal(data, &view); err != nil {
		return economy.EmpireView{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return view, nil
}

// SaveSession performs a full save of the player's local state.
func (db *DB) SaveSession(empire *economy.Empire, tracker *progression.Tracker) error {
	view := empire.View()
	slog.Info("saving session",
		"player", view.PlayerID,
		"level", view.Level,
		"routes", len(view.OwnedRoutes))

	if err := db.SaveProgression(view.PlayerID, view.Level, view.Experience); err != nil {
		return fmt.Errorf("save progression: %w", err)
	}
	if err := db.SaveUnlocks(view.PlayerID, view.UnlockedFeatures); err != nil {
		return fmt.Errorf("save unlocks: %w", err)
	}
	if err := db.SaveAchievements(view.PlayerID, tracker.Achievements()); err != nil {
		return fmt.Errorf("save achievements: %w", err)
	}
	if err := db.SaveSnapshot(view); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return nil
}

// RestoreSession loads a prior save into the empire and tracker. Returns
// ErrNoSave when the player has never saved.
func (db *DB) RestoreSession(empire *economy.Empire, tracker *progression.Tracker) error {
	view, err := db.LoadSnapshot(empire.PlayerID)
	if err != nil {
		return err
	}
	empire.ApplyView(view)

	saved, err := db.LoadAchievements(empire.PlayerID)
	if err != nil {
		return fmt.Errorf("load achievements: %w", err)
	}
	tracker.RestoreAchievements(saved)

	slog.Info("session restored",
		"player", empire.PlayerID,
		"level", view.Level,
		"routes", len(view.OwnedRoutes))
	return nil
}
