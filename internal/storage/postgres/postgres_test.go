package postgres

import (
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_JournalDefaults(t *testing.T) {
	cfg, err := poolConfig("postgres://sniper:pw@localhost:5432/sniper")
	require.NoError(t, err)
	assert.Equal(t, int32(journalMaxConns), cfg.MaxConns)
	assert.Equal(t, journalMaxIdleTime, cfg.MaxConnIdleTime)
	assert.Equal(t, journalConnectTimeout, cfg.ConnConfig.ConnectTimeout)
	assert.Equal(t, applicationName, cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_DSNWins(t *testing.T) {
	cfg, err := poolConfig("postgres://localhost/sniper?pool_max_conns=8&connect_timeout=2&application_name=ops")
	require.NoError(t, err)
	assert.Equal(t, int32(8), cfg.MaxConns)
	assert.Equal(t, 2*time.Second, cfg.ConnConfig.ConnectTimeout)
	assert.Equal(t, "ops", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_BadDSN(t *testing.T) {
	_, err := poolConfig("postgres://localhost:notaport/db")
	assert.Error(t, err)
}

func TestIsDuplicateKeyError(t *testing.T) {
	dup := &pgconn.PgError{Code: pgErrUniqueViolation}
	assert.True(t, isDuplicateKeyError(dup))
	assert.True(t, isDuplicateKeyError(fmt.Errorf("insert: %w", dup)))
	assert.False(t, isDuplicateKeyError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isDuplicateKeyError(nil))
}
