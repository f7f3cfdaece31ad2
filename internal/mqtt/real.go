package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/display-powerd/internal/display"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string

	// Will is published by the broker on our behalf if the connection drops
	// without a clean disconnect.
	Will []byte

	// OnConnectionChange is called whenever the connection goes up or down.
	OnConnectionChange func(connected bool)

	Log logrus.FieldLogger
}

// RealPublisher publishes to an actual MQTT broker. Messages produced while
// disconnected are buffered and replayed once the connection is back.
type RealPublisher struct {
	client   paho.Client
	log      logrus.FieldLogger
	onChange func(bool)

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. A broker that is
// not reachable yet is not an error: the client keeps retrying and messages
// are buffered meanwhile.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "display-powerd"
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	p := newPublisher(nil, o.Log, o.OnConnectionChange)

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) { p.connected() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.lost(err) })
	if o.Will != nil {
		opts.SetWill(TopicSystem, string(o.Will), 1, false)
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.WithField("broker", o.Broker).Warn("broker not reachable yet, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "connect to broker")
	}
	return p, nil
}

func newPublisher(client paho.Client, log logrus.FieldLogger, onChange func(bool)) *RealPublisher {
	log = log.WithField("component", "mqtt")
	return &RealPublisher{
		client:   client,
		log:      log,
		onChange: onChange,
		buf:      newRingBuffer(bufferCapacity, log),
	}
}

// Publish sends a transition to the MQTT broker.
func (p *RealPublisher) Publish(t display.Transition) error {
	payload, err := FormatPayload(t)
	if err != nil {
		return errors.Wrap(err, "format payload")
	}
	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return errors.Wrap(err, "format system payload")
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.buffer(msg)
		return nil
	}
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.buffer(msg)
		return errors.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		p.buffer(msg)
		return errors.Wrapf(err, "publish %s", msg.topic)
	}
	return nil
}

func (p *RealPublisher) buffer(msg bufferedMsg) {
	p.mu.Lock()
	p.buf.push(msg)
	p.mu.Unlock()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

func (p *RealPublisher) connected() {
	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()

	p.log.WithField("replay", len(pending)).Info("connected to broker")
	if p.onChange != nil {
		p.onChange(true)
	}
	for i, msg := range pending {
		if err := p.send(msg); err != nil {
			p.log.WithError(err).WithField("remaining", len(pending)-i-1).Warn("replay interrupted")
			// send re-buffered msg; keep the rest behind it.
			for _, rest := range pending[i+1:] {
				p.buffer(rest)
			}
			return
		}
	}
}

func (p *RealPublisher) lost(err error) {
	p.log.WithError(err).Warn("connection to broker lost")
	if p.onChange != nil {
		p.onChange(false)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
