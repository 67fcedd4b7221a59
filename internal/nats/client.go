package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/types"
)

const (
	StreamName = "MOVEMENTS"

	// SubjectRaw carries raw movement logs from the ingestor
	SubjectRaw = "movements.raw"
	// SubjectSaved carries an event for every saved upload
	SubjectSaved = "movements.saved"
)

// Client represents a NATS client
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// New creates a new NATS client and makes sure the movements stream exists
func New(url string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, err := nats.Connect(url, nats.Name("movement-logger"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectRaw, SubjectSaved},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn:   nc,
		js:     js,
		logger: logger,
	}, nil
}

func (c *Client) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishRawLog publishes a raw movement log
func (c *Client) PublishRawLog(raw *types.RawLog) error {
	return c.publish(SubjectRaw, raw)
}

// PublishUploadEvent announces a saved upload
func (c *Client) PublishUploadEvent(ev *types.UploadEvent) error {
	return c.publish(SubjectSaved, ev)
}

// SubscribeRawLogs delivers raw logs to handler through a durable consumer.
// A message is acknowledged when handler returns nil and redelivered otherwise.
func (c *Client) SubscribeRawLogs(durable string, handler func(*types.RawLog) error) (*nats.Subscription, error) {
	return c.subscribe(SubjectRaw, durable, func(data []byte) error {
		raw, err := decodeRawLog(data)
		if err != nil {
			return err
		}
		return handler(raw)
	})
}

// SubscribeUploadEvents delivers upload events to handler
func (c *Client) SubscribeUploadEvents(durable string, handler func(*types.UploadEvent) error) (*nats.Subscription, error) {
	return c.subscribe(SubjectSaved, durable, func(data []byte) error {
		var ev types.UploadEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return errMalformed{err}
		}
		return handler(&ev)
	})
}

func (c *Client) subscribe(subject, durable string, handle func([]byte) error) (*nats.Subscription, error) {
	sub, err := c.js.Subscribe(subject, func(msg *nats.Msg) {
		err := handle(msg.Data)
		var malformed errMalformed
		switch {
		case err == nil:
			_ = msg.Ack()
		case errors.As(err, &malformed):
			// redelivery cannot fix a payload that does not decode
			c.logger.Error("dropping malformed message", zap.String("subject", subject), zap.Error(err))
			_ = msg.Term()
		default:
			c.logger.Warn("message handler failed", zap.String("subject", subject), zap.Error(err))
			_ = msg.Nak()
		}
	}, nats.Durable(durable), nats.ManualAck(), nats.DeliverAll())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

type errMalformed struct{ err error }

func (e errMalformed) Error() string { return "malformed message: " + e.err.Error() }
func (e errMalformed) Unwrap() error { return e.err }

func decodeRawLog(data []byte) (*types.RawLog, error) {
	var raw types.RawLog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errMalformed{err}
	}
	if raw.Content == "" {
		return nil, errMalformed{errors.New("empty content")}
	}
	return &raw, nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
