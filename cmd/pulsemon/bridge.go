package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"pulsecore-go/bus"
	"pulsecore-go/frame"
	"pulsecore-go/types"
)

// Bridge republishes the monitor's decoded report stream to an MQTT broker,
// so dashboards and fleet tooling can watch a bench device remotely.
type Bridge struct {
	client paho.Client
	prefix string
	conn   *bus.Connection
	log    *zap.Logger
	done   chan struct{}
}

// clientOptionsFromURL builds paho options from an mqtt://host[:port][/prefix]
// URL. The path component becomes the topic prefix unless the config sets
// one explicitly.
func clientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", err
	}
	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}

	return opts, strings.TrimPrefix(u.Path, "/"), nil
}

// newBridge connects to the broker and starts forwarding everything under
// report/# plus the retained device state.
func newBridge(cfg MQTTConfig, m *Monitor, session string, log *zap.Logger) (*Bridge, error) {
	opts, urlPrefix, err := clientOptionsFromURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("broker url: %w", err)
	}
	if opts.ClientID == "" {
		opts.SetClientID("pulsemon-" + session)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = urlPrefix
	}
	if prefix == "" {
		prefix = "pulsecore/" + session
	}

	b := &Bridge{
		client: paho.NewClient(opts),
		prefix: prefix,
		log:    log.Named("bridge"),
		done:   make(chan struct{}),
	}
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("broker connect: %w", token.Error())
	}

	b.conn = m.bus.NewConnection("mqtt-bridge")
	reports := b.conn.Subscribe("report/#")
	state := b.conn.Subscribe(topicState)
	go b.forward(reports, state)

	b.log.Info("bridging reports", zap.String("prefix", prefix))
	return b, nil
}

func (b *Bridge) forward(reports, state *bus.Subscription) {
	defer close(b.done)
	for {
		select {
		case msg, ok := <-reports.Channel():
			if !ok {
				return
			}
			b.publish(msg, false)
		case msg, ok := <-state.Channel():
			if !ok {
				return
			}
			b.publish(msg, true)
		}
	}
}

func (b *Bridge) publish(msg *bus.Message, retained bool) {
	body, err := encodeBridgePayload(msg.Payload)
	if err != nil {
		b.log.Warn("encode report", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}
	topic := b.prefix + "/" + msg.Topic
	if token := b.client.Publish(topic, 0, retained, body); token.Wait() && token.Error() != nil {
		b.log.Warn("publish", zap.String("topic", topic), zap.Error(token.Error()))
	}
}

func encodeBridgePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case string:
		return []byte(p), nil
	case types.LogMessage:
		return json.Marshal(map[string]any{
			"ts":     p.Timestamp,
			"level":  p.Level.String(),
			"module": p.ModuleString(),
			"text":   p.TextString(),
		})
	case frame.TestResult:
		return json.Marshal(map[string]any{
			"test":       p.Name,
			"status":     p.Status,
			"elapsed_ms": p.ElapsedMs,
			"message":    p.Message,
		})
	case frame.SuiteSummary:
		return json.Marshal(map[string]any{
			"suite":      p.Name,
			"total":      p.Total,
			"passed":     p.Passed,
			"failed":     p.Failed,
			"skipped":    p.Skipped,
			"elapsed_ms": p.ElapsedMs,
		})
	case ErrorReport:
		return json.Marshal(map[string]any{
			"command": p.CommandID,
			"status":  p.Status,
			"detail":  p.Detail,
		})
	case AckReport:
		return json.Marshal(map[string]any{
			"command": p.CommandID,
			"detail":  p.Detail,
		})
	case StatusReport:
		return json.Marshal(map[string]any{
			"command": p.CommandID,
			"kind":    p.Kind,
			"raw":     p.Raw[:],
		})
	default:
		return nil, fmt.Errorf("unbridgeable payload %T", v)
	}
}

// Close detaches from the bus and disconnects from the broker.
func (b *Bridge) Close() {
	b.conn.Disconnect()
	<-b.done
	b.client.Disconnect(250)
}
