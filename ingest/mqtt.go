package ingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/gate"
	"github.com/skymesh/fleetcore/monitor"
	"github.com/skymesh/fleetcore/safetycache"
	"github.com/skymesh/fleetcore/util/backoff"
	"github.com/skymesh/fleetcore/util/logger"
	"github.com/skymesh/fleetcore/util/metrics"
	"github.com/skymesh/fleetcore/util/taskpool"
)

const (
	// DefaultTelemetryTopic matches one telemetry stream per drone,
	// e.g. fleet/telemetry/drone-001.
	DefaultTelemetryTopic = "fleet/telemetry/#"

	connectRetryInitial = 1 * time.Second
	connectRetryMax     = 30 * time.Second
)

// Config configures the MQTT telemetry bridge.
type Config struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Topic     string `yaml:"topic"`
	QoS       byte   `yaml:"qos"`
}

// Validate checks the config and fills in defaults.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("mqtt broker url is required")
	}
	if c.ClientID == "" {
		c.ClientID = "fleetcore-ingest-" + uuid.NewString()[:8]
	}
	if c.Topic == "" {
		c.Topic = DefaultTelemetryTopic
	}
	if c.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d", c.QoS)
	}
	return nil
}

// Broadcaster fans an event out to subscribed clients. Satisfied by
// *gate.Gate.
type Broadcaster interface {
	Broadcast(eventType string, data interface{}, channel gate.Channel) int
}

// Bridge subscribes to drone telemetry over MQTT and routes each
// report through the safety pipeline: fleet state, battery history,
// threshold evaluation, safety snapshot, client broadcast and the
// firehose. Handling runs on a per-drone task pool: reports for one
// drone are processed in arrival order, different drones in parallel,
// and a slow pipeline never stalls the MQTT receive loop.
type Bridge struct {
	config      Config
	state       *fleet.State
	cache       *safetycache.Cache
	evaluator   *monitor.Evaluator
	broadcaster Broadcaster
	firehose    *Firehose

	client mqtt.Client
	pool   *taskpool.TaskPool
	logger *logger.Logger
}

// NewBridge creates a telemetry bridge. broadcaster and firehose may
// be nil; the safety pipeline still runs without them.
func NewBridge(config Config, state *fleet.State, cache *safetycache.Cache, evaluator *monitor.Evaluator, broadcaster Broadcaster, firehose *Firehose) (*Bridge, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ingest config: %w", err)
	}
	return &Bridge{
		config:      config,
		state:       state,
		cache:       cache,
		evaluator:   evaluator,
		broadcaster: broadcaster,
		firehose:    firehose,
		logger:      logger.NewLogger("Ingest"),
	}, nil
}

// Start connects to the broker and subscribes to the telemetry topic.
// Connection failures are retried with exponential backoff until the
// context is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	b.pool = taskpool.NewTaskPool()
	b.pool.Start()

	opts := mqtt.NewClientOptions().
		AddBroker(b.config.BrokerURL).
		SetClientID(b.config.ClientID).
		SetOrderMatters(false).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true)
	if b.config.Username != "" {
		opts.SetUsername(b.config.Username)
	}
	if b.config.Password != "" {
		opts.SetPassword(b.config.Password)
	}

	// Re-subscribe on every (re)connect; the broker may have dropped
	// the session.
	opts.OnConnect = func(c mqtt.Client) {
		b.logger.Infof("connected to mqtt broker %s", b.config.BrokerURL)
		token := c.Subscribe(b.config.Topic, b.config.QoS, b.onMessage)
		if token.Wait() && token.Error() != nil {
			b.logger.Errorf("subscribe to %s failed: %v", b.config.Topic, token.Error())
			return
		}
		b.logger.Infof("subscribed to %s (qos %d)", b.config.Topic, b.config.QoS)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.logger.Warnf("mqtt connection lost: %v", err)
	}

	b.client = mqtt.NewClient(opts)

	retry := backoff.New(connectRetryInitial, connectRetryMax, 2.0)
	for {
		token := b.client.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}
		b.logger.Warnf("mqtt connect failed: %v, retrying in %s", token.Error(), retry.CurrentDelay())
		if err := retry.Wait(ctx); err != nil {
			return fmt.Errorf("connect to mqtt broker: %w", err)
		}
	}
}

// Stop disconnects from the broker and drains the worker pool.
func (b *Bridge) Stop() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	if b.pool != nil {
		b.pool.Stop()
	}
}

// onMessage parses on the receive goroutine so the submit can be
// keyed by drone id; the pipeline itself runs on the task pool.
func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	t, err := ParseTelemetry(msg.Payload())
	if err != nil {
		b.logger.Warnf("dropping telemetry on %s: %v", msg.Topic(), err)
		metrics.RecordIngest("telemetry", "invalid")
		return
	}
	b.pool.Submit(t.DroneID, func(ctx context.Context) {
		b.process(ctx, t)
	})
}

// Process runs one raw telemetry payload through the safety pipeline.
func (b *Bridge) Process(ctx context.Context, payload []byte) {
	t, err := ParseTelemetry(payload)
	if err != nil {
		b.logger.Warnf("dropping telemetry: %v", err)
		metrics.RecordIngest("telemetry", "invalid")
		return
	}
	b.process(ctx, t)
}

func (b *Bridge) process(ctx context.Context, t *Telemetry) {
	b.state.UpsertDrone(t.Drone())
	// Broadcast the stored record, not the wire payload: the state
	// merge keeps fields telemetry never carries, like the active
	// mission id.
	drone, _ := b.state.GetDrone(t.DroneID)
	b.cache.StoreBatteryData(t.DroneID, t.Reading())

	b.evaluator.EvaluateBattery(t.DroneID, t.Reading())
	b.evaluator.EvaluateStatus(t.DroneID, t.SignalStrength, t.FlightTime)

	b.cache.StoreDroneSafetyStatus(t.DroneID, fleet.SafetyStatus{
		DroneID:        t.DroneID,
		BatteryState:   b.evaluator.ClassifyBattery(t.BatteryLevel),
		BatteryLevel:   t.BatteryLevel,
		SignalStrength: t.SignalStrength,
		FlightTime:     t.FlightTime,
		LastUpdate:     t.Timestamp,
	})

	if b.broadcaster != nil {
		b.broadcaster.Broadcast("drone_status_update", drone, gate.ChannelDroneStatus)
	}
	if b.firehose != nil {
		b.firehose.PublishTelemetry(ctx, t)
	}
	metrics.RecordIngest("telemetry", "ok")
}
