package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"cvswatch/internal/domain"
)

// MQTTOptions configures an MQTTGateway
type MQTTOptions struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	StaleAfter  time.Duration // readings older than this are treated as absent
}

// MQTTGateway keeps the latest reading per sensor class from
// {prefix}/{class} topics. Each message carries {"connected", "value"}.
type MQTTGateway struct {
	opts   MQTTOptions
	client mqtt.Client
	now    func() time.Time

	mu        sync.RWMutex
	connected bool
	latest    map[string]mqttReading
}

type mqttReading struct {
	reading    domain.SensorReading
	receivedAt time.Time
}

// NewMQTTGateway creates an MQTT gateway. Call Start to connect.
func NewMQTTGateway(opts MQTTOptions) *MQTTGateway {
	opts.TopicPrefix = strings.TrimRight(opts.TopicPrefix, "/")
	return &MQTTGateway{
		opts:   opts,
		now:    time.Now,
		latest: make(map[string]mqttReading),
	}
}

// Name implements Gateway
func (g *MQTTGateway) Name() string { return "mqtt " + g.opts.Broker + " " + g.topic() }

// Start implements Gateway. The connection is retried in the background, so
// Start does not block on an unreachable broker.
func (g *MQTTGateway) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(g.opts.Broker)
	opts.SetClientID(g.opts.ClientID + "-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(g.topic(), 0, func(_ mqtt.Client, msg mqtt.Message) {
			g.handleMessage(msg.Topic(), msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			log.Printf("MQTT subscribe to %s failed: %v", g.topic(), token.Error())
			return
		}
		g.setConnected(true)
		log.Printf("MQTT gateway subscribed to %s", g.topic())
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		g.setConnected(false)
		log.Printf("MQTT connection lost: %v", err)
	}

	g.client = mqtt.NewClient(opts)
	g.client.Connect()
	log.Printf("MQTT gateway connecting to %s", g.opts.Broker)
	return nil
}

// Stop implements Gateway
func (g *MQTTGateway) Stop() error {
	if g.client != nil {
		g.client.Disconnect(250)
	}
	g.setConnected(false)
	return nil
}

// Fetch implements Gateway. Readings older than StaleAfter are left out of
// the report, which discovery treats as disconnected.
func (g *MQTTGateway) Fetch(ctx context.Context) (*domain.GatewayReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiscoveryUnavailable, err)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.connected {
		return nil, fmt.Errorf("%w: mqtt broker %s not connected", domain.ErrDiscoveryUnavailable, g.opts.Broker)
	}

	now := g.now()
	report := domain.NewGatewayReport(now)
	for class, r := range g.latest {
		if g.opts.StaleAfter > 0 && now.Sub(r.receivedAt) > g.opts.StaleAfter {
			continue
		}
		report.Sensors[class] = r.reading
	}
	return report, nil
}

func (g *MQTTGateway) topic() string {
	return g.opts.TopicPrefix + "/+"
}

func (g *MQTTGateway) setConnected(v bool) {
	g.mu.Lock()
	g.connected = v
	g.mu.Unlock()
}

func (g *MQTTGateway) handleMessage(topic string, payload []byte) {
	class := strings.TrimPrefix(topic, g.opts.TopicPrefix+"/")
	if class == "" || class == topic || strings.Contains(class, "/") {
		log.Printf("Ignoring MQTT message on unexpected topic %s", topic)
		return
	}

	var reading domain.SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		log.Printf("Invalid MQTT payload for %s: %v", class, err)
		return
	}

	g.mu.Lock()
	g.latest[class] = mqttReading{reading: reading, receivedAt: g.now()}
	g.mu.Unlock()
}
