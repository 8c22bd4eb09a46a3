package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"outlet-geofence-backend/internal/model"
)

// commandPayload is the wire format published to the outlet firmware.
type commandPayload struct {
	CommandID    string           `json:"command_id"`
	OutletID     string           `json:"outlet_id"`
	DesiredState model.PowerState `json:"desired_state"`
	IssuedAt     time.Time        `json:"issued_at"`
}

// ackPayload is the wire format the firmware publishes back.
type ackPayload struct {
	CommandID     string           `json:"command_id"`
	OutletID      string           `json:"outlet_id"`
	AchievedState model.PowerState `json:"achieved_state"`
	Timestamp     time.Time        `json:"timestamp"`
	Error         string           `json:"error,omitempty"`
}

// MQTT is a Transport over an MQTT broker: commands are published to a
// per-outlet topic and acknowledgments consumed from a shared ack
// subscription, correlated by command id.
type MQTT struct {
	client       mqtt.Client
	commandTopic string // template containing {id}

	mu      sync.Mutex
	pending map[string]chan ackPayload
}

// NewMQTT connects to the broker and subscribes to the ack topic. The
// command topic must contain an {id} placeholder; the ack topic is a
// wildcard subscription such as "outlets/+/ack".
func NewMQTT(brokerURL, clientID, commandTopic, ackTopic string) (*MQTT, error) {
	t := &MQTT{
		commandTopic: commandTopic,
		pending:      make(map[string]chan ackPayload),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOrderMatters(false)
	opts.OnConnect = func(c mqtt.Client) {
		if token := c.Subscribe(ackTopic, 1, t.handleAck); token.Wait() && token.Error() != nil {
			log.Printf("mqtt: subscribe %s failed: %v", ackTopic, token.Error())
		}
	}

	t.client = mqtt.NewClient(opts)
	if token := t.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return t, nil
}

// Submit publishes the command and blocks until the matching ack arrives or
// ctx expires.
func (t *MQTT) Submit(ctx context.Context, cmd model.Command) (model.CommandAck, error) {
	ch := make(chan ackPayload, 1)
	t.mu.Lock()
	t.pending[cmd.ID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, cmd.ID)
		t.mu.Unlock()
	}()

	payload, err := json.Marshal(commandPayload{
		CommandID:    cmd.ID,
		OutletID:     cmd.OutletID,
		DesiredState: cmd.DesiredState,
		IssuedAt:     cmd.IssuedAt,
	})
	if err != nil {
		return model.CommandAck{}, fmt.Errorf("encode command: %w", err)
	}

	topic := strings.ReplaceAll(t.commandTopic, "{id}", cmd.OutletID)
	token := t.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return model.CommandAck{}, fmt.Errorf("publish %s: timed out", topic)
	}
	if token.Error() != nil {
		return model.CommandAck{}, fmt.Errorf("publish %s: %w", topic, token.Error())
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return model.CommandAck{}, fmt.Errorf("outlet %s rejected command: %s", cmd.OutletID, ack.Error)
		}
		return model.CommandAck{
			CommandID:     ack.CommandID,
			OutletID:      ack.OutletID,
			AchievedState: ack.AchievedState,
			Timestamp:     ack.Timestamp,
		}, nil
	case <-ctx.Done():
		return model.CommandAck{}, ctx.Err()
	}
}

func (t *MQTT) handleAck(_ mqtt.Client, msg mqtt.Message) {
	var ack ackPayload
	if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
		log.Printf("mqtt: bad ack payload on %s: %v", msg.Topic(), err)
		return
	}
	t.mu.Lock()
	ch, ok := t.pending[ack.CommandID]
	t.mu.Unlock()
	if !ok {
		// Ack for a command nobody is waiting on; a retry already gave
		// up or the command was superseded.
		return
	}
	select {
	case ch <- ack:
	default:
	}
}

// Close disconnects from the broker.
func (t *MQTT) Close() {
	t.client.Disconnect(250)
}
