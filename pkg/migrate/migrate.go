package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migration files are written by CreateSQLMigration.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the SQL files compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return sub
}

// Source picks the embedded migrations unless dir points somewhere else.
func Source(dir string) fs.FS {
	if dir == "" || dir == DefaultDir {
		return Migrations()
	}
	return os.DirFS(dir)
}

// Result is one applied or reported migration.
type Result struct {
	Version   int64
	Path      string
	Direction string
	State     string
}

// Runner applies the auction schema to Postgres.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, fsys fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		fsys = Migrations()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Run executes one of up, up-by-one, down, redo or status.
func (r *Runner) Run(ctx context.Context, command string) ([]Result, error) {
	switch command {
	case "up":
		res, err := r.provider.Up(ctx)
		return results(res...), wrap(command, err)
	case "up-by-one":
		res, err := r.provider.UpByOne(ctx)
		return results(res), wrap(command, err)
	case "down":
		res, err := r.provider.Down(ctx)
		return results(res), wrap(command, err)
	case "redo":
		down, err := r.provider.Down(ctx)
		if err != nil {
			return results(down), wrap(command, err)
		}
		up, err := r.provider.UpByOne(ctx)
		return results(down, up), wrap(command, err)
	case "status":
		statuses, err := r.provider.Status(ctx)
		if err != nil {
			return nil, wrap(command, err)
		}
		out := make([]Result, 0, len(statuses))
		for _, s := range statuses {
			if s == nil || s.Source == nil {
				continue
			}
			out = append(out, Result{Version: s.Source.Version, Path: s.Source.Path, State: string(s.State)})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported migration command %q", command)
}

// MigrateTo moves the schema up or down to the given version.
func (r *Runner) MigrateTo(ctx context.Context, version string) ([]Result, error) {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == target:
		return nil, nil
	case current < target:
		res, err := r.provider.UpTo(ctx, target)
		return results(res...), wrap("up-to", err)
	default:
		res, err := r.provider.DownTo(ctx, target)
		return results(res...), wrap("down-to", err)
	}
}

func results(in ...*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(in))
	for _, res := range in {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Result{Version: res.Source.Version, Path: res.Source.Path, Direction: res.Direction})
	}
	return out
}

func wrap(command string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
