package transcribe

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ivlev/phrase2video/internal/config"
	"github.com/ivlev/phrase2video/internal/logging"
	"github.com/ivlev/phrase2video/internal/timeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Cache stores transcripts in sqlite, keyed by audio content, model and
// language, so re-running a project skips transcription.
type Cache struct {
	conn   *sql.DB
	logger *slog.Logger
}

// OpenCache opens or creates the cache database at path.
func OpenCache(path string, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	c := &Cache{conn: conn, logger: logging.OrDiscard(logger)}
	if err := c.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.conn.Close()
}

func (c *Cache) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if c.isMigrationApplied(name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := c.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := c.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		c.logger.Debug("applied migration", "name", name)
	}
	return nil
}

func (c *Cache) isMigrationApplied(name string) bool {
	var applied int
	err := c.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

// Key identifies a transcript: SHA-256 of the audio bytes plus the model
// and language.
func Key(audioPath string, cfg config.WhisperConfig) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", audioPath, err)
	}
	fmt.Fprintf(h, "\x00%s\x00%s", filepath.Base(cfg.ModelPath), cfg.Language)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached transcript for key; ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*timeline.Transcript, bool, error) {
	var payload string
	err := c.conn.QueryRowContext(ctx, "SELECT payload FROM transcripts WHERE cache_key = ?", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query transcript cache: %w", err)
	}

	var tr timeline.Transcript
	if err := json.Unmarshal([]byte(payload), &tr); err != nil {
		return nil, false, fmt.Errorf("decode cached transcript: %w", err)
	}
	return &tr, true, nil
}

// Put stores tr under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key, audioPath string, cfg config.WhisperConfig, tr *timeline.Transcript) error {
	payload, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	_, err = c.conn.ExecContext(ctx, `
		INSERT INTO transcripts (cache_key, audio_path, model, language, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			audio_path = excluded.audio_path,
			payload = excluded.payload,
			created_at = datetime('now')`,
		key, audioPath, filepath.Base(cfg.ModelPath), cfg.Language, string(payload))
	if err != nil {
		return fmt.Errorf("store transcript: %w", err)
	}
	return nil
}

// Cached wraps a Transcriber with the sqlite cache.
type Cached struct {
	Inner  Transcriber
	Cache  *Cache
	Config config.WhisperConfig
	Logger *slog.Logger
}

func (c *Cached) Transcribe(ctx context.Context, audioPath string) (*timeline.Transcript, error) {
	logger := logging.OrDiscard(c.Logger)
	key, err := Key(audioPath, c.Config)
	if err != nil {
		return nil, err
	}

	if tr, ok, err := c.Cache.Get(ctx, key); err != nil {
		logger.Warn("transcript cache lookup failed", "error", err)
	} else if ok {
		logger.Info("transcript cache hit", "audio", audioPath, "segments", len(tr.Segments))
		return tr, nil
	}

	tr, err := c.Inner.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Put(ctx, key, audioPath, c.Config, tr); err != nil {
		logger.Warn("transcript cache store failed", "error", err)
	}
	return tr, nil
}
