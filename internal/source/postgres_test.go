package source

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/robso86/jsonschema-mapper/pkg/config"
	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/robso86/jsonschema-mapper/pkg/postgres"
)

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	client, err := postgres.New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "schemas_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "schemamapper"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		Table:           "schema_documents_test",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPostgresReader(t *testing.T) {
	client := skipIfNoPostgres(t)
	ctx := context.Background()
	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	r := NewPostgresReader(client)

	uri := "pg://test/" + strconv.FormatInt(time.Now().UnixNano(), 36) + ".json"
	if _, err := r.ReadResource(ctx, uri); !errors.Is(err, importerrors.ErrResourceNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := r.Store(ctx, uri, []byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := r.Store(ctx, uri, []byte(`{"type":"string"}`)); err != nil {
		t.Fatal(err)
	}
	got, err := r.ReadResource(ctx, uri)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"type":"string"}` {
		t.Fatalf("got %q", got)
	}
	uris, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, u := range uris {
		found = found || u == uri
	}
	if !found {
		t.Fatalf("%s not listed", uri)
	}
	if err := r.Store(ctx, "", nil); !errors.Is(err, importerrors.ErrEmptyURI) {
		t.Fatalf("empty uri err = %v", err)
	}
}
