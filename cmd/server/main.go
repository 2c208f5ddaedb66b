package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leonardcser/pse-offline/internal/buildinfo"
	"github.com/leonardcser/pse-offline/internal/cache"
	"github.com/leonardcser/pse-offline/internal/config"
	"github.com/leonardcser/pse-offline/internal/host"
	"github.com/leonardcser/pse-offline/internal/logger"
	"github.com/leonardcser/pse-offline/internal/web"
	"github.com/leonardcser/pse-offline/internal/worker"
)

const cacheDaemonBinary = "pse-offline-cache"

func main() {
	fs := flag.NewFlagSet("pse-offline", flag.ExitOnError)
	printVersion := fs.Bool("print_version", false, "Print the version and exit")
	cfg, err := config.ParseServer(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *printVersion {
		fmt.Printf("pse-offline %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildTime)
		return
	}
	if err := logger.Init(cfg.LogPath); err != nil {
		panic(err)
	}
	defer logger.Close()

	if err := run(cfg); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg config.Server) error {
	logger.Infof("Starting PSE offline proxy %s for %s", buildinfo.Version, cfg.Origin)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	origin, _ := url.Parse(cfg.Origin)
	network := web.NewNetwork(cfg.FetchTimeout)
	hub := host.NewHub()
	syncs := host.NewSyncScheduler()
	w, err := worker.New(worker.Options{
		Origin:       origin,
		APIHost:      cfg.APIHost,
		StaticCache:  cfg.StaticCacheName(),
		APICache:     cfg.APICacheName(),
		Precache:     cfg.Precache,
		SyncTag:      cfg.SyncTag,
		SyncURL:      cfg.SyncURL,
		AutoActivate: cfg.AutoActivate,
	}, worker.Deps{
		Storage:   storage,
		Network:   network,
		Precacher: web.NewPrecacher(web.RequestTimeout),
		Clients:   hub,
		Notifier:  hub,
		Syncs:     syncs,
	})
	if err != nil {
		return err
	}

	// An uncontrolled proxy still forwards every request, so a failed install only logs.
	if _, err := w.Dispatch(ctx, worker.InstallEvent{}); err != nil {
		logger.Errorf("Install failed, passing requests through: %v", err)
	}
	go syncs.Run(ctx, w)

	opts := host.Options{Origin: origin}
	if cfg.MetricsEnabled {
		opts.Metrics = promhttp.Handler()
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           host.NewHandler(w, storage, hub, syncs, network, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", cfg.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStorage uses the cache daemon when a socket is configured and the local bbolt
// file otherwise.
func openStorage(cfg config.Server) (cache.Storage, func(), error) {
	if cfg.CacheSocket == "" {
		store, err := cache.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache %s: %w", cfg.DBPath, err)
		}
		logger.Infof("Using cache file %s", cfg.DBPath)
		return store, func() { _ = store.Close() }, nil
	}

	sock := cfg.CacheSocket
	logger.Infof("Attempting to connect to cache daemon at %s", sock)
	client, err := connectCache(sock)
	if err != nil {
		logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
		if startErr := startCacheDaemon(cfg); startErr != nil {
			logger.Errorf("Failed to start cache daemon: %v", startErr)
		} else {
			logger.Infof("Cache daemon started successfully")
		}
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if c2, err2 := connectCache(sock); err2 == nil {
				client, err = c2, nil
				break
			}
			time.Sleep(200 * time.Millisecond)
		}
		if client == nil {
			return nil, nil, fmt.Errorf("connect to cache daemon after startup attempt: %w", err)
		}
	}
	logger.Infof("Successfully connected to cache daemon")
	return client, func() {}, nil
}

func connectCache(sock string) (*cache.Client, error) {
	conn, err := net.DialTimeout("unix", sock, 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()
	return cache.NewClient(sock), nil
}

// startCacheDaemon looks for the daemon next to this executable, then on PATH, then
// in the working directory.
func startCacheDaemon(cfg config.Server) error {
	candidates := []string{}
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), cacheDaemonBinary))
	}
	if path, err := exec.LookPath(cacheDaemonBinary); err == nil {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, "./"+cacheDaemonBinary)

	for _, bin := range candidates {
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin, daemonArgs(cfg)...)
		cmd.Env = os.Environ()
		return cmd.Start()
	}
	return exec.ErrNotFound
}

// daemonArgs hands the proxy's socket and database to the daemon it starts.
func daemonArgs(cfg config.Server) []string {
	return []string{"-sock", cfg.CacheSocket, "-db", cfg.DBPath}
}
