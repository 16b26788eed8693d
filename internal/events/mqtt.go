package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// mqttClient is the part of paho.Client the publisher needs.
type mqttClient interface {
	IsConnected() bool
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// MQTTPublisher pushes events to driver handsets on <prefix>/<driverId>/events.
type MQTTPublisher struct {
	client mqttClient
	prefix string
	qos    byte
}

func NewMQTTPublisher(broker, clientID, topicPrefix string) (*MQTTPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	client := paho.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return newMQTTPublisher(client, topicPrefix), nil
}

func newMQTTPublisher(c mqttClient, prefix string) *MQTTPublisher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "drivers"
	}
	return &MQTTPublisher{client: c, prefix: prefix, qos: 1}
}

// Topic is the MQTT topic for driverID.
func (p *MQTTPublisher) Topic(driverID string) string {
	return p.prefix + "/" + driverID + "/events"
}

func (p *MQTTPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.Topic(evt.DriverID), p.qos, false, body)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
