package main

import (
	"github.com/trestle-legal/docket/internal/server"
	"github.com/trestle-legal/docket/internal/util"
	"github.com/trestle-legal/docket/pkg/logger"
	"github.com/trestle-legal/docket/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
