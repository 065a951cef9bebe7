package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/robso86/jsonschema-mapper/internal/manager"
	"github.com/robso86/jsonschema-mapper/internal/metaschema"
	"github.com/robso86/jsonschema-mapper/internal/source"
	"github.com/robso86/jsonschema-mapper/pkg/config"
	"github.com/robso86/jsonschema-mapper/pkg/logger"
	"github.com/robso86/jsonschema-mapper/pkg/postgres"
	"github.com/robso86/jsonschema-mapper/pkg/resilience"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type cli struct {
	configPath string
	format     string
	baseDir    string
	strict     bool
	timeout    time.Duration

	cfg *config.Config
	pg  *postgres.Client
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "schemactl",
		Short:        "Import JSON Schema documents and manage the schema registry",
		SilenceUsage: true,
		Long: `schemactl reads a JSON Schema document, indexes its scopes, resolves its
$ref pointers and prints the normalized model.

Documents are read from local paths, file:// and http(s):// URIs, and from
the Postgres registry (pg:// URIs) when one is configured.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.pg != nil {
				return c.pg.Close()
			}
			return nil
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&c.configPath, "config", "", "path to config file")
	f.StringVarP(&c.format, "format", "o", "json", "output format: json or yaml")
	f.StringVar(&c.baseDir, "base-dir", "", "directory relative paths are read from (overrides config)")
	f.BoolVar(&c.strict, "strict", false, "validate documents against the draft-04 meta-schema first")
	f.DurationVar(&c.timeout, "timeout", 30*time.Second, "overall time limit")

	root.AddCommand(
		c.resolveCmd(),
		c.idsCmd(),
		c.refCmd(),
		c.checkCmd(),
		c.publishCmd(),
		c.listCmd(),
		c.packCmd(),
	)
	return root
}

func (c *cli) setup() error {
	if c.format != "json" && c.format != "yaml" {
		return fmt.Errorf("unknown output format %q", c.format)
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.baseDir != "" {
		cfg.Sources.BaseDir = c.baseDir
	}
	c.cfg = cfg
	logger.Setup(cfg.Logging.Level, "text")
	return nil
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

// registry connects to the configured Postgres registry on first use.
func (c *cli) registry(ctx context.Context) (*source.PostgresReader, error) {
	if c.cfg.Postgres.Host == "" {
		return nil, fmt.Errorf("no postgres registry configured (set postgres.host or SM_POSTGRES_HOST)")
	}
	if c.pg == nil {
		pg, err := resilience.Retry(ctx, "postgres connect", resilience.RetryConfig{MaxAttempts: 3}, func(context.Context) (*postgres.Client, error) {
			return postgres.New(c.cfg.Postgres)
		})
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		c.pg = pg
	}
	return source.NewPostgresReader(c.pg), nil
}

func (c *cli) manager(ctx context.Context) (*manager.Manager, error) {
	s := c.cfg.Sources
	readers := source.NewMux()
	readers.Handle(source.NewFileReader(s.BaseDir, s.MaxBodyBytes), "file")
	readers.Handle(source.NewHTTPReader(source.HTTPOptions{
		Timeout:  s.HTTPTimeout,
		MaxBytes: s.MaxBodyBytes,
		Retry:    resilience.RetryConfig{MaxAttempts: s.HTTPRetries},
	}), "http", "https")
	if c.cfg.Postgres.Host != "" {
		pg, err := c.registry(ctx)
		if err != nil {
			return nil, err
		}
		readers.Handle(pg, "pg")
	}

	opts := []manager.Option{
		manager.WithResolveTimeout(c.cfg.Import.ResolveTimeout),
		manager.WithReadTimeout(c.cfg.Import.ReadTimeout),
	}
	if c.strict || c.cfg.Import.Strict {
		mc, err := metaschema.New()
		if err != nil {
			return nil, err
		}
		opts = append(opts, manager.WithPreflight(mc.Check))
	}
	return manager.New(readers, opts...), nil
}

// print writes v in the selected format.
func (c *cli) print(w io.Writer, v any) error {
	if c.format == "yaml" {
		plain, err := plainValue(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plain); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// plainValue round-trips v through JSON so decoded json.Number values
// print as YAML numbers rather than quoted strings.
func plainValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
