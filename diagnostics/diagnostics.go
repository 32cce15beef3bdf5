// Package diagnostics publishes update-session progress and error
// events to an MQTT broker, for an operator console to subscribe to
// while an update is in flight. It is optional: an Engine runs with no
// Publisher configured.
//
// This device is NIC-less, so the underlying transport is a plain
// net.Conn to a broker reachable from wherever the update host runs
// the bus master.
package diagnostics

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"

	"openenterprise/bus-updater/updater"
)

const (
	dialTimeout = 5 * time.Second
	userBufSize = 512
)

// Publisher publishes update events to a fixed MQTT topic over a
// plain TCP connection to a broker.
type Publisher struct {
	conn   net.Conn
	client *mqtt.Client
	topic  []byte
	seq    uint16
	log    *slog.Logger
}

// Dial connects to broker and publishes under topic. clientID should
// be unique per device so a broker doesn't see colliding sessions.
func Dial(broker, topic, clientID string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := net.DialTimeout("tcp", broker, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: dial %s: %w", broker, err)
	}

	var userBuf [userBufSize]byte
	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: userBuf[:]},
	}
	client := mqtt.NewClient(cfg)

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(clientID))

	conn.SetDeadline(time.Now().Add(dialTimeout))
	if err := client.StartConnect(conn, &varconn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("diagnostics: connect: %w", err)
	}
	for i := 0; i < 20 && !client.IsConnected(); i++ {
		time.Sleep(50 * time.Millisecond)
		client.HandleNext()
	}
	if !client.IsConnected() {
		conn.Close()
		return nil, fmt.Errorf("diagnostics: broker did not acknowledge CONNECT")
	}

	return &Publisher{conn: conn, client: client, topic: []byte(topic), log: log}, nil
}

// Close disconnects cleanly.
func (p *Publisher) Close() error {
	p.client.Disconnect(fmt.Errorf("diagnostics: session closed"))
	return p.conn.Close()
}

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// PublishError reports the engine's current last-error register.
func (p *Publisher) PublishError(err updater.ErrorKind) {
	p.publish(fmt.Sprintf("error op_result=%s", err))
}

// PublishProgress reports bytes staged so far toward a commit.
func (p *Publisher) PublishProgress(staged, total uint32) {
	p.publish(fmt.Sprintf("progress staged=%d total=%d", staged, total))
}

func (p *Publisher) publish(payload string) {
	p.seq++
	p.conn.SetDeadline(time.Now().Add(dialTimeout))
	pubVar := mqtt.VariablesPublish{TopicName: p.topic, PacketIdentifier: p.seq}
	if err := p.client.PublishPayload(pubFlags, pubVar, []byte(payload)); err != nil {
		p.log.Warn("diagnostics:publish-failed", "error", err)
	}
}
