package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultPingInterval is how often PingLoop reports the node alive.
const DefaultPingInterval = 120 * time.Second

// Client wraps the MQTT client with application-specific functionality.
type Client struct {
	client       paho.Client
	clientID     string
	broker       string
	enabled      bool
	log          *zap.Logger
	onConnect    func()
	onDisconnect func()
}

// Config holds MQTT connection settings.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// Handlers holds callback functions for MQTT events.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()
}

// ScanMessage is published for every finished scan.
type ScanMessage struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Mode   string `json:"mode"`
}

// ScanTopic is where scan outcomes of clientID are published.
func ScanTopic(clientID string) string {
	return fmt.Sprintf("rfidscan/status/node/%s/scan", clientID)
}

// PingTopic is where clientID reports that it is alive.
func PingTopic(clientID string) string {
	return fmt.Sprintf("rfidscan/status/node/%s/ping", clientID)
}

// New creates a new MQTT client. Returns a disabled no-op client if host is empty.
func New(cfg Config, clientID string, log *zap.Logger, handlers Handlers) (*Client, error) {
	c := &Client{
		clientID:     clientID,
		log:          log.Named("mqtt"),
		onConnect:    handlers.OnConnect,
		onDisconnect: handlers.OnDisconnect,
	}

	if cfg.Host == "" {
		c.log.Info("MQTT disabled (no host configured)")
		return c, nil
	}

	if clientID == "" {
		return nil, errors.New("client_id is required when mqtt is enabled")
	}

	c.enabled = true

	var tlsConfig *tls.Config
	if cfg.CACert != "" || cfg.ClientCert != "" {
		if cfg.Port == 0 {
			cfg.Port = 8883
		}
		c.broker = fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)

		var err error
		tlsConfig, err = buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
	} else {
		if cfg.Port == 0 {
			cfg.Port = 1883
		}
		c.broker = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
		c.log.Info("MQTT using non-TLS connection", zap.String("broker", c.broker))
	}

	opts := paho.NewClientOptions().
		AddBroker(c.broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect)

	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(opts)

	if errLog, err := zap.NewStdLogAt(c.log, zapcore.ErrorLevel); err == nil {
		paho.ERROR = errLog
		paho.CRITICAL = errLog
	}
	if warnLog, err := zap.NewStdLogAt(c.log, zapcore.WarnLevel); err == nil {
		paho.WARN = warnLog
	}

	return c, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connect connects to the MQTT broker. If disabled, calls onConnect immediately.
func (c *Client) Connect() error {
	if !c.enabled {
		// Nothing will ever report the link up, so report it now.
		if c.onConnect != nil {
			c.onConnect()
		}
		return nil
	}

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	return nil
}

// Disconnect disconnects from the MQTT broker. No-op if disabled.
func (c *Client) Disconnect() error {
	if !c.enabled || c.client == nil {
		return nil
	}
	c.client.Disconnect(250)
	return nil
}

// Publish publishes a message to a topic. No-op if disabled.
func (c *Client) Publish(topic string, payload string) {
	if !c.enabled {
		return
	}
	c.client.Publish(topic, 0, false, payload)
}

// PublishScan publishes msg to this node's scan topic.
func (c *Client) PublishScan(msg ScanMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode scan message: %w", err)
	}
	c.Publish(ScanTopic(c.clientID), string(payload))
	return nil
}

// Ping publishes a liveness message.
func (c *Client) Ping() {
	c.Publish(PingTopic(c.clientID), `{"status":"ok"}`)
}

// PingLoop pings every interval until ctx is done.
func (c *Client) PingLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Ping()
		}
	}
}

// IsEnabled returns whether MQTT is enabled.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

func (c *Client) handleConnect(client paho.Client) {
	c.log.Info("MQTT connection established", zap.String("broker", c.broker))
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Client) handleConnectionLost(client paho.Client, err error) {
	c.log.Warn("MQTT connection lost", zap.Error(err))
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}
