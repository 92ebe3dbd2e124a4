package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redrock/searchrover/rover"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile    = flag.String("config", "", "Path to YAML configuration file (defaults used when empty)")
	linkAddr      = flag.String("link-addr", "", "Override simulator websocket listen address")
	httpPort      = flag.Int("http-port", 0, "Override observer HTTP port")
	groundTruth   = flag.String("ground-truth", "", "Override ground truth map PNG path")
	samplesTarget = flag.Int("samples", 0, "Override number of samples to collect")
	recordDir     = flag.String("record", "", "Save camera frames from the run to this directory")
	mqttBroker    = flag.String("mqtt-broker", "", "Override MQTT broker URL (empty disables publishing)")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("searchrover %s", Version)
		return
	}

	cfg := rover.DefaultConfig()
	if *configFile != "" {
		loaded, err := rover.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		cfg = loaded
	}

	if *linkAddr != "" {
		cfg.Link.Addr = *linkAddr
	}
	if *httpPort != 0 {
		cfg.HTTP.Port = *httpPort
	}
	if *groundTruth != "" {
		cfg.GroundTruthMap = *groundTruth
	}
	if *samplesTarget != 0 {
		cfg.SamplesTarget = *samplesTarget
	}
	if *recordDir != "" {
		cfg.RecordDir = *recordDir
	}
	if *mqttBroker != "" {
		cfg.MQTT.Broker = *mqttBroker
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Error initializing: %v", err)
	}
	defer app.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- app.RunLink() }()
	go func() { errCh <- app.RunHTTP() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	}
}
