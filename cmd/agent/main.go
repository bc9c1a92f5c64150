/*
File Name:  main.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Command-line entry point wiring config, store, and the engine together.
Mirrors the banner-logging style of the teacher's Settings.go InitLog,
minus the DHT bootstrap the teacher's CLI otherwise performs.
*/

package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	core "github.com/hsha/lanshare"
	"github.com/hsha/lanshare/controlapi"
	"github.com/hsha/lanshare/store"
	"github.com/hsha/lanshare/transfer"
)

func main() {
	configFile := flag.String("config", "Config.yaml", "path to the YAML configuration file")
	databasePath := flag.String("database", "", "override the configured database path")
	controlAddr := flag.String("control", "127.0.0.1:8892", "address the local control API listens on")
	flag.Parse()

	config, status, err := core.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config (status %d): %v\n", status, err)
		os.Exit(1)
	}
	if *databasePath != "" {
		config.DatabasePath = *databasePath
	}

	if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "creating database directory: %v\n", err)
		os.Exit(1)
	}

	backingStore, err := store.NewPogrebStore(config.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening database %q: %v\n", config.DatabasePath, err)
		os.Exit(1)
	}
	defer backingStore.Close()

	var controlServer *controlapi.Server

	filters := core.Filters{
		LogError: func(component, format string, v ...interface{}) {
			log.Printf("["+component+"] "+format, v...)
		},
		OnProgress: func(pubkey [32]byte, sending bool, snap transfer.ProgressSnapshot) {
			if controlServer != nil {
				controlServer.PublishProgress(hex.EncodeToString(pubkey[:]), sending, snap.TotalFiles, snap.DoneFiles, snap.TotalBytes, snap.DoneBytes)
			}
		},
	}

	backend, err := core.Init(config, backingStore, filters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "starting engine: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	controlServer = controlapi.NewServer(core.NewControlAdapter(backend))

	httpServer := &http.Server{Addr: *controlAddr, Handler: controlServer.Router()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("control API stopped: %v", err)
		}
	}()

	log.Printf("---- lanshare agent %s ----", core.Version)
	log.Printf("session listening on tcp4 :8890, discovery on udp4 :8891, control API on %s", *controlAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
	httpServer.Close()
}
