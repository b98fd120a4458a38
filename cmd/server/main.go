// Command server exposes the record and attachment HTTP API.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirill555101/paperclip/internal/config"
)

// EnvConfigPath names the base configuration file. Empty uses config.toml.
const EnvConfigPath = "PAPERCLIP_CONFIG"

func main() {
	cfg, err := config.Load(os.Getenv(EnvConfigPath))
	if err != nil {
		log.Fatal("config load failed:", err)
	}

	if err := cfg.Finalize(); err != nil {
		log.Fatal("config finalize failed:", err)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatal("server init failed:", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatal("server start failed:", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	if err := srv.Shutdown(); err != nil {
		log.Fatal("shutdown failed:", err)
	}

	log.Println("server stopped gracefully")
}
