package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

func main() {
	defaultConfigFile := "config.yaml"
	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		defaultConfigFile = envConfig
	}

	configFileFlag := flag.String("config", defaultConfigFile, "Path to YAML configuration file (env: CONFIG_FILE)")
	listenFlag := flag.String("listen", "", "Control surface listen address (overrides http.listen)")
	serverFlag := flag.String("server", "", "UberSDR server base URL (overrides server.url)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Panorama spectrum client for ka9q_ubersdr\n\n")
		fmt.Fprintf(os.Stderr, "Streams spectrum frames from an UberSDR server, renders a waterfall\n")
		fmt.Fprintf(os.Stderr, "and line graph, and exposes them over a local HTTP control surface.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	config, err := LoadConfig(*configFileFlag)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *serverFlag != "" {
		config.Server.URL = *serverFlag
	}
	if *listenFlag != "" {
		config.HTTP.Listen = *listenFlag
	}

	app, err := NewApp(config, filepath.Dir(*configFileFlag))
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	server := NewAPIServer(app, config.HTTP.Listen)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nShutting down...\n")
		app.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	log.Printf("Connecting to %s", config.Server.URL)
	if err := app.Start(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Control surface failed: %v", err)
	}
}
