//go:build integration

package web

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"

	"carservice-commerce/internal/infra/db/pgtest"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	db, err := pgtest.Start(context.Background())
	if err != nil {
		log.Fatalf("web test database: %v", err)
	}
	testPool = db.Pool
	log.Println("web test database is ready")

	code := m.Run()
	db.Close()
	os.Exit(code)
}
