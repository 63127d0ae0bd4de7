package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luis198755/execgateway/internal/config"
	"github.com/luis198755/execgateway/internal/logging"
	"github.com/luis198755/execgateway/internal/server"
)

func main() {
	conf, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := logging.New(conf.LogLevel, conf.LogFormat)
	for _, w := range conf.Warnings {
		logger.Warn().Msg(w)
	}

	srv, err := server.New(conf, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
