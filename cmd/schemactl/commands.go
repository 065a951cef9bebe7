package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/robso86/jsonschema-mapper/internal/importer"
	"github.com/robso86/jsonschema-mapper/internal/scope"
	"github.com/robso86/jsonschema-mapper/internal/source"
	"github.com/spf13/cobra"
)

func (c *cli) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <uri>",
		Short: "Import a document and print its normalized model",
		Long: `Import the document at uri, resolve every $ref it contains and print the
resulting model: its properties, definitions and id index.

Example:
  schemactl resolve schemas/person.json
  schemactl resolve https://example.com/schemas/order.json -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imp, err := c.fetch(cmd, args[0])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), imp.Model())
		},
	}
}

func (c *cli) idsCmd() *cobra.Command {
	var table bool
	cmd := &cobra.Command{
		Use:   "ids <uri>",
		Short: "Print the scope index of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imp, err := c.fetch(cmd, args[0])
			if err != nil {
				return err
			}
			ids := imp.Model().IDs
			if !table {
				return c.print(cmd.OutOrStdout(), ids)
			}
			keys := make([]string, 0, len(ids))
			for k := range ids {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tPATH\tSCOPE")
			for _, k := range keys {
				e := ids[k]
				path := e.Path
				if path == "" {
					path = "(root)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", k, path, e.Absolute)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&table, "table", "t", false, "print a table instead of json/yaml")
	return cmd
}

func (c *cli) refCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ref <uri#fragment>",
		Short: "Print the schema a reference points to",
		Long: `Import the document part of the reference and look its fragment up in the
model. An empty fragment prints the top-level properties.

Example:
  schemactl ref 'schemas/person.json#/definitions/address'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, fragment := scope.SplitFragment(args[0])
			imp, err := c.fetch(cmd, args[0])
			if err != nil {
				return err
			}
			node, err := imp.FindRef(fragment)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), node)
		},
	}
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <uri>...",
		Short: "Import documents with meta-schema validation and report failures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.strict = true
			failed := 0
			for _, uri := range args {
				if _, err := c.fetch(cmd, uri); err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", uri, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", uri)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}
}

func (c *cli) publishCmd() *cobra.Command {
	var skipImport bool
	cmd := &cobra.Command{
		Use:   "publish <uri> <file>",
		Short: "Store a document in the Postgres registry under uri",
		Long: `Read file, check that it imports cleanly and store it in the registry under
uri, replacing any earlier version. Other documents can then reference it
by that uri.

Example:
  schemactl publish pg://schemas/person.json schemas/person.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, path := args[0], args[1]
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			if !skipImport {
				m, err := c.manager(ctx)
				if err != nil {
					return err
				}
				if _, err := m.Import(ctx, uri, content); err != nil {
					return fmt.Errorf("%s does not import: %w", path, err)
				}
			}
			reg, err := c.registry(ctx)
			if err != nil {
				return err
			}
			if err := reg.Store(ctx, uri, content); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s (%d bytes)\n", uri, len(content))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipImport, "no-import", false, "store without importing first")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the uris held in the Postgres registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			reg, err := c.registry(ctx)
			if err != nil {
				return err
			}
			uris, err := reg.List(ctx)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), uris)
		},
	}
}

func (c *cli) packCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pack <file>",
		Short: "Write an xz-compressed copy of a document next to it",
		Long: `Compress file into file.xz. Compressed documents are read transparently by
every command and by the service's file reader.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out := args[0] + ".xz"
			if err := source.WriteXZ(out, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
}

func (c *cli) fetch(cmd *cobra.Command, uri string) (*importer.Importer, error) {
	ctx, cancel := c.context(cmd)
	defer cancel()
	m, err := c.manager(ctx)
	if err != nil {
		return nil, err
	}
	return m.FetchSchema(ctx, uri)
}
