package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/lecom/internal/buildinfo"
	"github.com/dmitrijs2005/lecom/internal/devserver"
	"github.com/dmitrijs2005/lecom/internal/devserver/config"
	"github.com/dmitrijs2005/lecom/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.New(cfg.LogLevel, os.Stdout)

	app, err := devserver.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
