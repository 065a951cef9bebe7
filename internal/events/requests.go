package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/robso86/jsonschema-mapper/internal/importer"
	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/robso86/jsonschema-mapper/pkg/kafka"
	"github.com/robso86/jsonschema-mapper/pkg/logger"
)

// RequestHandler returns a kafka.MessageHandler that imports the document
// named by each ImportRequest. A failed import is logged and the message
// committed; the completion event carries the failure. Only undecodable
// messages and an empty URI are returned as errors.
func RequestHandler(fetcher importer.Fetcher) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		req, err := kafka.DecodeJSON[ImportRequest](value)
		if err != nil {
			return err
		}
		if req.URI == "" {
			return fmt.Errorf("import request %q: %w", key, importerrors.ErrEmptyURI)
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}
		ctx = logger.WithRequestID(ctx, req.RequestID)
		imp, err := fetcher.FetchSchema(ctx, req.URI)
		if err != nil {
			logger.FromContext(ctx).Warn("requested import failed", "uri", req.URI, "error", err)
			return nil
		}
		logger.FromContext(logger.WithImport(ctx, imp.ID(), req.URI)).Info("requested import complete",
			"ids", len(imp.Model().IDs))
		return nil
	}
}
