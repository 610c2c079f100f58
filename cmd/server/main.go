package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/projectflow/flowchat/config"
	"github.com/projectflow/flowchat/server"
	"github.com/projectflow/flowchat/shared"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	server.SetLogLevel(cfg.LogLevel)

	codec, err := shared.NewCodec(cfg.MessageSecret)
	if err != nil {
		log.Fatalf("failed to initialize message codec: %v", err)
	}

	store, err := server.OpenStore(cfg.DBPath, codec)
	if err != nil {
		log.Fatalf("failed to open message store: %v", err)
	}
	defer store.Close()

	hub := server.NewHub()
	router := server.NewRouter(store, hub, cfg)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server.ServerLogger.Info("flowchat server starting", map[string]interface{}{
		"addr": addr,
		"tls":  cfg.IsTLSEnabled(),
	})

	if cfg.IsTLSEnabled() {
		log.Fatal(http.ListenAndServeTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile, router))
	}
	log.Fatal(http.ListenAndServe(addr, router))
}
