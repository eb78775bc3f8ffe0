package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tabimed/partnerpay/internal/clock"
	"github.com/tabimed/partnerpay/internal/config"
	"github.com/tabimed/partnerpay/internal/migration"
	"github.com/tabimed/partnerpay/internal/observability"
	"github.com/tabimed/partnerpay/internal/server"
	"github.com/tabimed/partnerpay/pkg/db"
	"go.uber.org/fx"
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
