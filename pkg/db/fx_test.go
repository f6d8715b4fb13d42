package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payconnect/internal/config"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestInstrumentRegistersPlugins(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Instrument(conn, config.Config{DBName: "payconnect"}))
	require.Contains(t, conn.Config.Plugins, "otelgorm")
	require.Contains(t, conn.Config.Plugins, "gorm:prometheus")
}
