package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cpaggregator/cpaggregator/cmd/scraper/cmds"
	"github.com/cpaggregator/cpaggregator/internal/logger"
	otelcpaggregator "github.com/cpaggregator/cpaggregator/internal/otel"
)

func runApp(ctx context.Context) int {
	useOTLP, err := strconv.ParseBool(os.Getenv("USE_OTLP"))
	if err != nil {
		useOTLP = false
	}

	shutdown, err := otelcpaggregator.Setup(ctx, useOTLP)
	if err != nil {
		logger.Logger.Warn("failed to setup otel sdk", "error", err)
	}
	defer func() {
		if fail := shutdown(ctx); fail != nil {
			logger.Logger.Warn("no clean shutdown for otel", "error", fail)
		}
	}()

	if err := cmds.Execute(ctx); err != nil {
		logger.Logger.Error(err.Error())
		return 1
	}
	return 0
}

func main() {
	logger.InitSlog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := runApp(ctx)
	stop()
	os.Exit(code)
}
