package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/robso86/jsonschema-mapper/pkg/postgres"
)

// PostgresReader serves documents from the schema registry table, keyed by
// their URI. It handles the "pg" scheme and any URI published into the
// registry under its canonical location.
type PostgresReader struct {
	client *postgres.Client
	table  string
	logger *slog.Logger
}

func NewPostgresReader(client *postgres.Client) *PostgresReader {
	return &PostgresReader{
		client: client,
		table:  pq.QuoteIdentifier(client.Table()),
		logger: slog.Default().With("component", "postgres-source"),
	}
}

func (r *PostgresReader) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT content FROM %s WHERE uri = $1`, r.table)
	var content []byte
	err := r.client.DB.QueryRowContext(ctx, query, uri).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", importerrors.ErrResourceNotFound, uri)
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", uri, err)
	}
	return content, nil
}

// Store publishes content under uri, replacing an earlier version.
func (r *PostgresReader) Store(ctx context.Context, uri string, content []byte) error {
	if uri == "" {
		return importerrors.ErrEmptyURI
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (uri, content, updated_at) VALUES ($1, $2, now())
ON CONFLICT (uri) DO UPDATE SET content = EXCLUDED.content, updated_at = now()`, r.table)
	err := r.client.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, stmt, uri, content)
		return err
	})
	if err != nil {
		return fmt.Errorf("storing %s: %w", uri, err)
	}
	r.logger.Info("document stored", "uri", uri, "bytes", len(content))
	return nil
}

// List returns the URIs held in the registry in lexical order.
func (r *PostgresReader) List(ctx context.Context) ([]string, error) {
	rows, err := r.client.DB.QueryContext(ctx, fmt.Sprintf(`SELECT uri FROM %s ORDER BY uri`, r.table))
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	var uris []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("scanning uri: %w", err)
		}
		uris = append(uris, uri)
	}
	return uris, rows.Err()
}
