package cli

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/sqlsentinel/httpserver"
)

func TestNormalizeCommand_Remote(t *testing.T) {
	s := httpserver.New(httpserver.WithLogger(zerolog.New(io.Discard)))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	t.Run("given remote server, then prints its outcomes in order", func(t *testing.T) {
		records, _, err := execute(t, "SELECT * FROM users WHERE id = 1\nDELETE FROM sessions\n",
			"normalize", "--remote", srv.URL, "--adapter", "mysql2")
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "normalized", records[0].Result)
		assert.Equal(t, "SELECT FROM users", records[0].Query.Title)
		assert.Equal(t, "SELECT * FROM users WHERE id = ?", records[0].Query.Description)
		assert.Equal(t, map[string]string{"adapter": "mysql2"}, records[0].Query.Metadata)
		assert.Equal(t, "DELETE FROM sessions", records[1].Query.Title)
	})

	t.Run("given skipped label, then prints skipped record", func(t *testing.T) {
		records, _, err := execute(t, "", "normalize", "--remote", srv.URL, "--label", "CACHE", "SELECT 1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "skipped", records[0].Result)
		assert.Nil(t, records[0].Query)
	})

	t.Run("given invalid remote URL, then returns error", func(t *testing.T) {
		_, _, err := execute(t, "", "normalize", "--remote", "localhost:8080", "SELECT a FROM b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid base URL")
	})
}
