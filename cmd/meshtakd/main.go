package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/atakgw/meshtak/internal/certstore"
	"github.com/atakgw/meshtak/internal/config"
	"github.com/atakgw/meshtak/internal/core"
	"github.com/atakgw/meshtak/internal/radio"
)

const version = "0.1.0"

func getDefaultConfig() string {
	if _, err := os.Stat("meshtak.ini"); err == nil {
		return "meshtak.ini"
	}
	systemConfig := "/etc/meshtak.ini"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig
	}
	return "meshtak.ini"
}

func main() {
	var (
		configFile = flag.String("config", getDefaultConfig(), "Configuration file path")
		showVer    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("meshtakd v%s\n", version)
		return
	}

	if flag.NArg() > 0 {
		*configFile = flag.Arg(0)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("meshtakd v%s starting with config: %s", version, *configFile)

	cfg := config.NewConfig(*configFile)
	if err := cfg.Load(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// TODO: swap radio.NewMock() for the real driver once the mesh-radio
	// collaborator's Go binding is available; everything downstream of
	// radio.Driver is already wired against the interface.
	driver := radio.NewMock()

	c, err := core.New(core.Options{
		Config:      cfg,
		RadioDriver: driver,
		KeyStore:    certstore.NewMemKeyStore(),
		Logger:      log.Default(),
	})
	if err != nil {
		log.Fatalf("failed to construct gateway: %v", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Printf("error closing gateway: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := c.Run(ctx); err != nil {
		log.Fatalf("gateway error: %v", err)
	}

	log.Printf("meshtakd stopped")
}
