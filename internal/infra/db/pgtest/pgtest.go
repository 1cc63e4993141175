// Package pgtest runs a throwaway Postgres container with the commerce
// schema applied. Integration tests only.
package pgtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	image    = "postgres:14-alpine"
	user     = "commerce"
	password = "commerce"
	dbName   = "commerce_test"
)

// Database is a running container and a pool connected to it.
type Database struct {
	Pool      *pgxpool.Pool
	container string
}

// Start launches a container on a random host port, waits until it accepts
// connections and applies deploy/postgres/init.sql.
func Start(ctx context.Context) (*Database, error) {
	var out bytes.Buffer
	run := exec.CommandContext(ctx, "docker", "run", "-d", "--rm", "-P",
		"-e", "POSTGRES_DB="+dbName,
		"-e", "POSTGRES_USER="+user,
		"-e", "POSTGRES_PASSWORD="+password,
		image,
	)
	run.Stdout = &out
	if err := run.Run(); err != nil {
		return nil, fmt.Errorf("docker run (is docker running?): %w", err)
	}
	db := &Database{container: strings.TrimSpace(out.String())}

	port, err := db.hostPort(ctx)
	if err != nil {
		db.stop()
		return nil, err
	}
	dsn := fmt.Sprintf("postgres://%s:%s@127.0.0.1:%s/%s?sslmode=disable", user, password, port, dbName)

	for attempt := 0; attempt < 30; attempt++ {
		db.Pool, err = pgxpool.Connect(ctx, dsn)
		if err == nil {
			if err = db.Pool.Ping(ctx); err == nil {
				break
			}
			db.Pool.Close()
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		db.stop()
		return nil, fmt.Errorf("database never became ready: %w", err)
	}

	if err := db.applySchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the pool and stops the container.
func (d *Database) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
	d.stop()
}

func (d *Database) hostPort(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", "port", d.container, "5432/tcp").Output()
	if err != nil {
		return "", fmt.Errorf("docker port: %w", err)
	}
	// first line looks like "0.0.0.0:49153"
	line := strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)[0]
	i := strings.LastIndex(line, ":")
	if i < 0 {
		return "", fmt.Errorf("unexpected docker port output %q", line)
	}
	return line[i+1:], nil
}

func (d *Database) applySchema(ctx context.Context) error {
	root, err := moduleRoot()
	if err != nil {
		return err
	}
	schema, err := os.ReadFile(filepath.Join(root, "deploy", "postgres", "init.sql"))
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := d.Pool.Exec(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (d *Database) stop() {
	_ = exec.Command("docker", "stop", d.container).Run()
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above working directory")
		}
		dir = parent
	}
}
