package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLite(t *testing.T) {
	db, err := Connect(Config{
		Driver: "sqlite",
		Name:   ":memory:",
	})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Dialector.Name())
}

func TestConnectMySQLUnreachable(t *testing.T) {
	// Connection refused must surface as an error, not hang: the DSN
	// carries a dial timeout.
	_, err := Connect(Config{
		Driver:         "mysql",
		Host:           "127.0.0.1",
		Port:           1,
		User:           "root",
		Name:           "iot_manager",
		TimeoutSeconds: 1,
	})
	assert.Error(t, err)
}
