package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/scheduler"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (try multiple paths)
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, path := range envPaths {
		_ = godotenv.Load(path)
	}

	errorsLog := os.Getenv("ERRORS_LOG")
	if errorsLog == "" {
		errorsLog = "errors.log"
	}
	log, err := logging.New(errorsLog)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutdown signal received")
		cancel()
	}()

	svc, err := scheduler.BuildService(ctx, log)
	if err != nil {
		log.Errorf("build service: %v", err)
		return
	}

	if err := svc.Run(ctx); err != nil {
		log.Errorf("service stopped: %v", err)
		return
	}
	time.Sleep(300 * time.Millisecond)
}
