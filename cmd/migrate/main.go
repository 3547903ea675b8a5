package main

import (
	"bufio"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"blertbank/internal/config"
	"blertbank/internal/db"
	"blertbank/internal/logging"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

const downMarker = "-- +migrate Down"

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("failed to load config")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFilePath)
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("failed to configure logging")
	}
	database, err := db.Connect(cfg.DatabaseURL, db.Options{MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	applied, err := migrate(database, *dir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Int("applied", applied).Msg("migrations complete")
}

// migrate applies every pending file in dir in lexical order, recording
// each in schema_migrations once it succeeds.
func migrate(database *sqlx.DB, dir string, logger zerolog.Logger) (int, error) {
	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		return 0, err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.Get(&exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return applied, err
		}
		if exists {
			continue
		}
		tx, err := database.Beginx()
		if err != nil {
			return applied, err
		}
		if err := applyFile(tx, file); err != nil {
			_ = tx.Rollback()
			return applied, err
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			_ = tx.Rollback()
			return applied, err
		}
		if err := tx.Commit(); err != nil {
			return applied, err
		}
		logger.Info().Str("file", filename).Msg("applied migration")
		applied++
	}
	return applied, nil
}

func applyFile(db execer, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	up := strings.SplitN(string(content), downMarker, 2)[0]
	statements, err := splitSQL(up)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func splitSQL(sqlText string) ([]string, error) {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}
