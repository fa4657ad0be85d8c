package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kroma-labs/sqlsentinel/config"
	"github.com/kroma-labs/sqlsentinel/httpclient"
	"github.com/kroma-labs/sqlsentinel/normalizer"
	sentinelsql "github.com/kroma-labs/sqlsentinel/sql"
)

// maxStatementSize bounds a single line of input.
const maxStatementSize = 1 << 20

var errNoStatements = errors.New("no SQL statements given")

// record is one line of normalize output.
type record struct {
	Result string            `json:"result"`
	Query  *normalizer.Query `json:"query,omitempty"`
}

func newRecord(out normalizer.Outcome) record {
	r := record{Result: out.Result.String()}
	if out.Result != normalizer.Skipped {
		q := out.Query
		r.Query = &q
	}
	return r
}

// NewNormalizeCommand creates the normalize command.
func NewNormalizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize [SQL...]",
		Short: "Normalize SQL statements into titles and redacted statements",
		Long: `Normalize each SQL statement and print one JSON object per statement, in
input order.

Statements come from the arguments, or one per line from --file or stdin.`,
		Example: `  # Normalize a single statement
  sqlsentinel normalize "SELECT * FROM users WHERE id = 1"

  # Normalize a log of statements, labelled
  sqlsentinel normalize --label "User Load" --file queries.sql

  # Read from stdin and keep parse failures quiet
  cat queries.sql | sqlsentinel normalize --log-sql-parse-errors=false

  # Normalize on a running sqlsentinel server
  sqlsentinel normalize --remote http://localhost:8080 --file queries.sql`,
		RunE: runNormalize,
	}

	cmd.Flags().String("label", "", "Label attached to every statement, e.g. \"User Load\"")
	cmd.Flags().String("adapter", "", "Adapter metadata entry, e.g. postgresql")
	cmd.Flags().String("database", "", "Database metadata entry")
	cmd.Flags().StringP("file", "f", "", "Read statements from file, one per line (- for stdin)")
	cmd.Flags().IntP("concurrency", "c", runtime.NumCPU(), "Number of statements normalized in parallel")
	cmd.Flags().Bool("log-sql-parse-errors", true, "Log statements that fail to normalize")
	cmd.Flags().String("remote", "", "Normalize on the sqlsentinel server at this URL instead of locally")
	cmd.Flags().Duration("timeout", 5*time.Second, "Timeout per request to --remote")

	return cmd
}

func runNormalize(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	cfgFile, _ := flags.GetString("config")

	src, err := config.Load(config.WithFile(cfgFile), config.WithFlags(flags))
	if err != nil {
		return err
	}

	logger := setupLogger(src.LogLevel(), src.LogFormat(), cmd.ErrOrStderr())
	if file := src.FileUsed(); file != "" {
		logger.Debug().Str("file", file).Msg("Using config file")
	}

	statements, err := readStatements(cmd, args)
	if err != nil {
		return err
	}

	label, _ := flags.GetString("label")
	metadata := make(map[string]string, 2)
	if adapter, _ := flags.GetString("adapter"); adapter != "" {
		metadata[sentinelsql.MetadataAdapter] = adapter
	}
	if database, _ := flags.GetString("database"); database != "" {
		metadata[sentinelsql.MetadataDatabase] = database
	}

	queries := make([]normalizer.RawQuery, len(statements))
	for i, stmt := range statements {
		queries[i] = normalizer.RawQuery{Label: label, SQL: stmt, Metadata: metadata}
	}

	ctx := logger.WithContext(cmd.Context())

	var outcomes []normalizer.Outcome
	if remote := src.String(config.KeyRemoteURL); remote != "" {
		client, err := httpclient.New(remote,
			httpclient.WithTimeout(src.Duration(config.KeyRemoteTimeout)),
			httpclient.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		logger.Debug().Str("remote", remote).Msg("Normalizing remotely")
		if outcomes, err = client.NormalizeBatch(ctx, queries); err != nil {
			return fmt.Errorf("remote normalize failed: %w", err)
		}
	} else {
		concurrency, _ := flags.GetInt("concurrency")
		n := normalizer.New(
			normalizer.WithSettings(src),
			normalizer.WithLogger(logger),
		)
		if outcomes, err = normalizeLocal(ctx, n, queries, concurrency); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, out := range outcomes {
		if err := enc.Encode(newRecord(out)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	logger.Debug().Int("statements", len(statements)).Msg("Normalized statements")
	return nil
}

// normalizeLocal normalizes queries on up to concurrency goroutines,
// keeping input order.
func normalizeLocal(
	ctx context.Context,
	n *normalizer.Normalizer,
	queries []normalizer.RawQuery,
	concurrency int,
) ([]normalizer.Outcome, error) {
	outcomes := make([]normalizer.Outcome, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, q := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcomes[i] = n.Normalize(ctx, q)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// readStatements returns args when given, else the non-blank lines of
// --file or stdin.
func readStatements(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	var r io.Reader = cmd.InOrStdin()
	if path, _ := cmd.Flags().GetString("file"); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var statements []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStatementSize)
	for scanner.Scan() {
		if line := scanner.Text(); strings.TrimSpace(line) != "" {
			statements = append(statements, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statements: %w", err)
	}
	if len(statements) == 0 {
		return nil, errNoStatements
	}
	return statements, nil
}
