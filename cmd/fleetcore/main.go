package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/skymesh/fleetcore/archive"
	"github.com/skymesh/fleetcore/config"
	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/gate"
	"github.com/skymesh/fleetcore/gate/gateserver"
	"github.com/skymesh/fleetcore/ingest"
	"github.com/skymesh/fleetcore/monitor"
	"github.com/skymesh/fleetcore/safetycache"
	"github.com/skymesh/fleetcore/scoring"
)

// alertSink routes evaluator alert lifecycle events to the gate
// broadcast, the archive and the firehose. All three targets are
// best-effort; a failure in one never blocks the others.
type alertSink struct {
	gate     *gate.Gate
	archive  *archive.Archive
	firehose *ingest.Firehose
}

func (s *alertSink) AlertRaised(alert fleet.Alert) {
	ctx := context.Background()
	if s.gate != nil {
		channel := gate.AlertChannel(alert.Type)
		s.gate.Broadcast(string(channel)+"_alert", alert, channel)
	}
	if s.archive != nil {
		s.archive.RecordRaised(ctx, alert)
	}
	if s.firehose != nil {
		s.firehose.PublishAlertRaised(ctx, alert)
	}
}

func (s *alertSink) AlertResolved(alert fleet.Alert) {
	ctx := context.Background()
	if s.gate != nil {
		s.gate.Broadcast("alert_resolved", alert, gate.AlertChannel(alert.Type))
	}
	if s.archive != nil {
		s.archive.RecordResolved(ctx, alert)
	}
	if s.firehose != nil {
		s.firehose.PublishAlertResolved(ctx, alert)
	}
}

func main() {
	configPath := flag.String("config", "fleetcore.yml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := safetycache.NewCache(safetycache.Config{
		BatteryWindow:  cfg.Safety.BatteryWindow,
		AlertRetention: cfg.Safety.AlertRetention,
	})
	state := fleet.NewState()

	var alertArchive *archive.Archive
	if cfg.Archive != nil {
		alertArchive, err = archive.Open(ctx, cfg.Archive)
		if err != nil {
			log.Fatalf("Failed to open alert archive: %v", err)
		}
		defer alertArchive.Close()
	}

	var firehose *ingest.Firehose
	if cfg.Firehose != nil {
		firehose, err = ingest.NewFirehose(*cfg.Firehose)
		if err != nil {
			log.Fatalf("Failed to create firehose: %v", err)
		}
		defer firehose.Close()
	}

	sink := &alertSink{archive: alertArchive, firehose: firehose}
	evaluator := monitor.NewEvaluator(cfg.Safety.Thresholds, cache, sink)

	g := gate.NewGate(gate.Config{
		HeartbeatInterval: cfg.Gate.HeartbeatInterval,
		LivenessTimeout:   cfg.Gate.LivenessTimeout,
	}, cache, state, evaluator)
	sink.gate = g
	if cfg.Scoring.CruiseSpeed > 0 {
		g.SetScorer(&scoring.Scorer{CruiseSpeed: cfg.Scoring.CruiseSpeed})
	}

	// Operator resolutions go through the gate, which handles its own
	// broadcast; only the archive and firehose need to hear about them.
	g.OnAlertResolved = func(alert fleet.Alert) {
		if alertArchive != nil {
			alertArchive.RecordResolved(context.Background(), alert)
		}
		if firehose != nil {
			firehose.PublishAlertResolved(context.Background(), alert)
		}
	}

	server, err := gateserver.NewServer(&gateserver.Config{
		ListenAddress:        cfg.Gate.ListenAddr,
		MetricsListenAddress: cfg.Gate.MetricsAddr,
	}, g)
	if err != nil {
		log.Fatalf("Failed to create gate server: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Failed to start gate server: %v", err)
	}
	log.Printf("Gate server listening on %s", cfg.Gate.ListenAddr)

	var bridge *ingest.Bridge
	if cfg.Ingest != nil {
		bridge, err = ingest.NewBridge(*cfg.Ingest, state, cache, evaluator, g, firehose)
		if err != nil {
			log.Fatalf("Failed to create ingest bridge: %v", err)
		}
		// Start retries with backoff until the broker is reachable,
		// so it runs off the main goroutine.
		go func() {
			if err := bridge.Start(ctx); err != nil {
				log.Printf("Ingest bridge stopped: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal")

	cancel()
	if bridge != nil {
		bridge.Stop()
	}
	if err := server.Stop(); err != nil {
		log.Printf("Error stopping gate server: %v", err)
	}

	log.Println("Fleetcore stopped")
}
