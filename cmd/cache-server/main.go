package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leonardcser/pse-offline/internal/cache"
	"github.com/leonardcser/pse-offline/internal/config"
	"github.com/leonardcser/pse-offline/internal/logger"
)

func main() {
	cfg, err := config.ParseCacheDaemon(flag.NewFlagSet("pse-offline-cache", flag.ExitOnError), os.Args[1:])
	if err != nil {
		panic(err)
	}
	if err := logger.InitFromEnv("", "pse-offline-cache"); err != nil {
		panic(err)
	}
	defer logger.Close()

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(cfg.Socket), 0o755)
	_ = os.Remove(cfg.Socket)

	l, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		logger.Errorf("listen on %s: %v", cfg.Socket, err)
		os.Exit(1)
	}
	_ = os.Chmod(cfg.Socket, 0o600)

	store, err := cache.Open(cfg.DBPath)
	if err != nil {
		_ = l.Close()
		logger.Errorf("open %s: %v", cfg.DBPath, err)
		os.Exit(1)
	}
	defer store.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Infof("cache daemon stopping")
		_ = l.Close()
	}()

	logger.Infof("cache daemon serving %s on %s", cfg.DBPath, cfg.Socket)
	if err := cache.Serve(l, store); err != nil {
		logger.Errorf("serve: %v", err)
	}
	_ = os.Remove(cfg.Socket)
}
