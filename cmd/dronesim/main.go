// Command dronesim publishes synthetic drone telemetry over MQTT for
// exercising a fleetcore instance locally.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/ingest"
)

type simDrone struct {
	id         string
	name       string
	status     fleet.DroneStatus
	battery    float64
	signal     float64
	position   fleet.Position
	flightTime float64
}

func newSimDrone(i int) *simDrone {
	return &simDrone{
		id:      "drone-" + uuid.NewString()[:8],
		name:    "Sim " + string(rune('A'+i%26)),
		status:  fleet.StatusInFlight,
		battery: 60 + rand.Float64()*40,
		signal:  70 + rand.Float64()*30,
		position: fleet.Position{
			Latitude:  37.77 + rand.Float64()*0.1,
			Longitude: -122.42 + rand.Float64()*0.1,
			Altitude:  80 + rand.Float64()*60,
		},
	}
}

// step advances the drone one tick: batteries drain, positions drift
// and signal wobbles. A drained drone lands and recharges.
func (d *simDrone) step(interval time.Duration) {
	switch d.status {
	case fleet.StatusInFlight:
		d.battery -= 0.5 + rand.Float64()
		d.flightTime += interval.Seconds()
		d.position.Latitude += (rand.Float64() - 0.5) * 0.001
		d.position.Longitude += (rand.Float64() - 0.5) * 0.001
		if d.battery <= 8 {
			d.status = fleet.StatusCharging
			d.flightTime = 0
		}
	case fleet.StatusCharging:
		d.battery += 3
		if d.battery >= 95 {
			d.battery = 95
			d.status = fleet.StatusInFlight
		}
	}
	d.signal += (rand.Float64() - 0.5) * 10
	if d.signal > 100 {
		d.signal = 100
	}
	if d.signal < 20 {
		d.signal = 20
	}
}

func (d *simDrone) telemetry() ingest.Telemetry {
	return ingest.Telemetry{
		DroneID:        d.id,
		Name:           d.name,
		Status:         string(d.status),
		BatteryLevel:   d.battery,
		SignalStrength: d.signal,
		Position:       d.position,
		FlightTime:     d.flightTime,
		Timestamp:      time.Now(),
	}
}

func main() {
	brokerURL := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topicPrefix := flag.String("topic-prefix", "fleet/telemetry", "telemetry topic prefix")
	count := flag.Int("drones", 5, "number of simulated drones")
	interval := flag.Duration("interval", 2*time.Second, "publish interval")
	flag.Parse()

	opts := mqtt.NewClientOptions().
		AddBroker(*brokerURL).
		SetClientID("dronesim-" + uuid.NewString()[:8]).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("Failed to connect to %s: %v", *brokerURL, token.Error())
	}
	defer client.Disconnect(250)

	drones := make([]*simDrone, *count)
	for i := range drones {
		drones[i] = newSimDrone(i)
		log.Printf("Simulating %s (%s)", drones[i].id, drones[i].name)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, d := range drones {
				d.step(*interval)
				payload, err := json.Marshal(d.telemetry())
				if err != nil {
					log.Printf("Failed to encode telemetry for %s: %v", d.id, err)
					continue
				}
				topic := *topicPrefix + "/" + d.id
				if token := client.Publish(topic, 1, false, payload); token.Wait() && token.Error() != nil {
					log.Printf("Failed to publish for %s: %v", d.id, token.Error())
				}
			}
		case <-sigChan:
			log.Println("Shutting down")
			return
		}
	}
}
