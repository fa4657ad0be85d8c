package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqlsentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Bool("log-sql-parse-errors", true, "")
	fs.String("log-level", "info", "")
	fs.String("log-format", "json", "")
	fs.Int("concurrency", 4, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad(t *testing.T) {
	type want struct {
		logErrors bool
		level     string
		format    string
	}

	tests := []struct {
		name  string
		file  string
		env   map[string]string
		flags []string
		want  want
	}{
		{
			name: "given nothing, then returns defaults",
			want: want{logErrors: true, level: "info", format: "json"},
		},
		{
			name: "given yaml file, then file overrides defaults",
			file: "log_sql_parse_errors: false\nlog:\n  level: debug\n",
			want: want{logErrors: false, level: "debug", format: "json"},
		},
		{
			name: "given env vars, then env overrides file",
			file: "log_sql_parse_errors: false\nlog:\n  level: debug\n",
			env: map[string]string{
				"SQLSENTINEL_LOG_SQL_PARSE_ERRORS": "true",
				"SQLSENTINEL_LOG__FORMAT":          "console",
			},
			want: want{logErrors: true, level: "debug", format: "console"},
		},
		{
			name:  "given explicit flags, then flags override env",
			env:   map[string]string{"SQLSENTINEL_LOG_SQL_PARSE_ERRORS": "true", "SQLSENTINEL_LOG__LEVEL": "warn"},
			flags: []string{"--log-sql-parse-errors=false", "--log-level=error"},
			want:  want{logErrors: false, level: "error", format: "json"},
		},
		{
			name:  "given unchanged flags, then flag defaults do not override env",
			env:   map[string]string{"SQLSENTINEL_LOG_SQL_PARSE_ERRORS": "false"},
			flags: []string{"--concurrency=2"},
			want:  want{logErrors: false, level: "info", format: "json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, v := range tt.env {
				t.Setenv(key, v)
			}

			var opts []Option
			if tt.file != "" {
				opts = append(opts, WithFile(writeFile(t, tt.file)))
			}
			if tt.flags != nil {
				opts = append(opts, WithFlags(newFlags(t, tt.flags...)))
			}

			src, err := Load(opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want.logErrors, src.LogSQLParseErrors())
			assert.Equal(t, tt.want.level, src.LogLevel())
			assert.Equal(t, tt.want.format, src.LogFormat())
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("given missing explicit file, then returns error", func(t *testing.T) {
		_, err := Load(WithFile(filepath.Join(t.TempDir(), "nope.yaml")))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("given malformed yaml, then returns error", func(t *testing.T) {
		_, err := Load(WithFile(writeFile(t, "log: [unclosed\n")))
		assert.Error(t, err)
	})
}

func TestLoad_EnvPrefix(t *testing.T) {
	t.Setenv("APM_LOG_SQL_PARSE_ERRORS", "false")
	t.Setenv("SQLSENTINEL_LOG_SQL_PARSE_ERRORS", "true")

	src, err := Load(WithEnvPrefix("APM_"))
	require.NoError(t, err)
	assert.False(t, src.LogSQLParseErrors())
}

func TestSource_Set(t *testing.T) {
	t.Run("given Set, then next read sees the value", func(t *testing.T) {
		src, err := Load()
		require.NoError(t, err)
		require.True(t, src.LogSQLParseErrors())

		require.NoError(t, src.Set(KeyLogSQLParseErrors, false))
		assert.False(t, src.LogSQLParseErrors())
	})

	t.Run("given Set then Reload, then override survives and file changes apply", func(t *testing.T) {
		path := writeFile(t, "log:\n  level: debug\n")
		src, err := Load(WithFile(path))
		require.NoError(t, err)
		assert.Equal(t, path, src.FileUsed())

		require.NoError(t, src.Set(KeyLogSQLParseErrors, false))
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n  format: console\n"), 0o600))
		require.NoError(t, src.Reload())

		assert.False(t, src.LogSQLParseErrors())
		assert.Equal(t, "warn", src.LogLevel())
		assert.Equal(t, "console", src.LogFormat())
	})

	t.Run("given concurrent readers and writers, then no value is torn", func(t *testing.T) {
		src, err := Load()
		require.NoError(t, err)

		var g errgroup.Group
		for i := 0; i < 4; i++ {
			g.Go(func() error {
				for j := 0; j < 100; j++ {
					if err := src.Set(KeyLogSQLParseErrors, j%2 == 0); err != nil {
						return err
					}
					_ = src.LogSQLParseErrors()
				}
				return nil
			})
			g.Go(func() error {
				for j := 0; j < 10; j++ {
					if err := src.Reload(); err != nil {
						return err
					}
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
	})
}

func TestSource_Int(t *testing.T) {
	src, err := Load(WithFlags(newFlags(t, "--concurrency=7")))
	require.NoError(t, err)
	assert.Equal(t, 7, src.Int("concurrency"))
}

func TestSource_ServerKeys(t *testing.T) {
	t.Run("given nothing, then returns server defaults", func(t *testing.T) {
		src, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":8080", src.String(KeyServerAddr))
		assert.Equal(t, 1000, src.Int(KeyServerMaxBatchSize))
		assert.Zero(t, src.Float64(KeyServerRateLimit))
		assert.Equal(t, 5*time.Second, src.Duration(KeyRemoteTimeout))
	})

	t.Run("given file and flags, then flags map to nested keys", func(t *testing.T) {
		path := writeFile(t, "server:\n  addr: \":9090\"\n  rate_limit: 2.5\nremote:\n  timeout: 250ms\n")

		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.Int("burst", 0, "")
		fs.String("remote", "", "")
		require.NoError(t, fs.Parse([]string{"--burst=5", "--remote=http://sentinel:8080"}))

		src, err := Load(WithFile(path), WithFlags(fs))
		require.NoError(t, err)
		assert.Equal(t, ":9090", src.String(KeyServerAddr))
		assert.InDelta(t, 2.5, src.Float64(KeyServerRateLimit), 0.001)
		assert.Equal(t, 5, src.Int(KeyServerBurst))
		assert.Equal(t, "http://sentinel:8080", src.String(KeyRemoteURL))
		assert.Equal(t, 250*time.Millisecond, src.Duration(KeyRemoteTimeout))
	})
}

func TestSource_Watch(t *testing.T) {
	t.Run("given no config file, then returns ErrNoFile", func(t *testing.T) {
		src, err := Load()
		require.NoError(t, err)
		assert.ErrorIs(t, src.Watch(context.Background(), nil), ErrNoFile)
	})

	t.Run("given file rewritten, then reloads", func(t *testing.T) {
		path := writeFile(t, "log_sql_parse_errors: true\n")
		src, err := Load(WithFile(path))
		require.NoError(t, err)
		require.True(t, src.LogSQLParseErrors())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var reloads atomic.Int32
		require.NoError(t, src.Watch(ctx, func(error) { reloads.Add(1) }))

		require.NoError(t, os.WriteFile(path, []byte("log_sql_parse_errors: false\n"), 0o600))

		assert.Eventually(t, func() bool {
			return !src.LogSQLParseErrors()
		}, 5*time.Second, 20*time.Millisecond)
		assert.Positive(t, reloads.Load())
	})
}
