package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/migration"
	"github.com/smallbiznis/rukun/internal/observability"
	"github.com/smallbiznis/rukun/internal/server"
	"github.com/smallbiznis/rukun/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema and bootstrap admin before the listener starts
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
