package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/payconnect/internal/clock"
	"github.com/smallbiznis/payconnect/internal/config"
	"github.com/smallbiznis/payconnect/internal/migration"
	"github.com/smallbiznis/payconnect/internal/observability"
	"github.com/smallbiznis/payconnect/internal/server"
	"github.com/smallbiznis/payconnect/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)

	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
