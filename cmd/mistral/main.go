package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/api"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/config"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/db"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/mmwave"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/serialio"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/units"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/version"
)

var (
	dataPort      = flag.String("port", "/dev/ttyUSB1", "Sensor data port, or mock:<file> to replay a capture")
	dataBaud      = flag.Int("baud", serialio.DefaultDataBaudRate, "Data port baud rate")
	controlPort   = flag.String("control-port", "/dev/ttyUSB0", "Sensor control port")
	controlBaud   = flag.Int("control-baud", serialio.DefaultControlBaudRate, "Control port baud rate")
	sensorCfg     = flag.String("config", "", "Sensor configuration file to upload before capture")
	tuningPath    = flag.String("tuning", "", "Classifier tuning JSON file")
	dbPath        = flag.String("db", "mistral.db", "Database path (empty disables persistence)")
	listen        = flag.String("listen", ":8080", "Listen address")
	velocityUnits = flag.String("units", units.MPS, "Velocity units for API output ("+units.GetValidUnitsString()+")")
)

func main() {
	flag.Parse()

	log.Printf("mistral-visualizer %s (%s)", version.Version, version.GitSHA)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*velocityUnits) {
		log.Fatalf("Invalid units %q, valid values: %s", *velocityUnits, units.GetValidUnitsString())
	}

	// A mock: port replays a recorded capture instead of opening hardware.
	mockCapture, isMock := strings.CutPrefix(*dataPort, serialio.MockPortPrefix)

	params := mmwave.DefaultParams()
	displayCap := 0
	queueCapacity := 0
	drainMax := 0
	var pollInterval time.Duration
	if *tuningPath != "" {
		tuning, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		params = tuning.Params()
		displayCap = tuning.GetDisplayCap()
		queueCapacity = tuning.GetQueueCapacity()
		drainMax = tuning.GetDrainMax()
		pollInterval = tuning.GetPollInterval()
	}

	// Upload the sensor configuration over the control port before opening
	// the data port for capture.
	if *sensorCfg != "" && !isMock {
		mode := serialio.DefaultControlPortMode()
		mode.BaudRate = *controlBaud
		sender := serialio.ConfigSender{}
		if err := sender.SendConfigFile(*sensorCfg, *controlPort, mode); err != nil {
			log.Fatalf("Failed to upload sensor config: %v", err)
		}
	}

	var database *db.DB
	if *dbPath != "" {
		var err error
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
	}

	dataMode := serialio.DefaultDataPortMode()
	dataMode.BaudRate = *dataBaud
	collectorCfg := mmwave.CollectorConfig{
		PortPath:      *dataPort,
		Mode:          dataMode,
		QueueCapacity: queueCapacity,
	}
	if isMock {
		factory, err := serialio.NewReplayFactory(mockCapture)
		if err != nil {
			log.Fatalf("Failed to open capture replay: %v", err)
		}
		collectorCfg.Factory = factory
	}
	collector := mmwave.NewCollector(collectorCfg)

	pipelineCfg := mmwave.PipelineConfig{
		Collector:  collector,
		Params:     params,
		Interval:   pollInterval,
		DrainMax:   drainMax,
		DisplayCap: displayCap,
	}
	if database != nil {
		pipelineCfg.Sink = database
	}
	pipeline := mmwave.NewPipeline(pipelineCfg)

	if err := pipeline.Start(); err != nil {
		log.Fatalf("Failed to start capture: %v", err)
	}
	defer pipeline.Stop()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(pipeline, database, *velocityUnits).ServeMux()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("Listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
