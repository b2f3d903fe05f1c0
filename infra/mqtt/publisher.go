package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/peakguard/core/logger"
	"github.com/kilianp07/peakguard/core/model"
	coremon "github.com/kilianp07/peakguard/core/monitoring"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// StateMessage is the payload published on the state topic.
type StateMessage struct {
	MessageID   string                `json:"messageId"`
	PublishedAt time.Time             `json:"publishedAt"`
	State       model.SimulationState `json:"state"`
}

// AllocationMessage is the payload published on the allocation topic.
type AllocationMessage struct {
	MessageID   string             `json:"messageId"`
	Tick        int                `json:"tick"`
	SimulatedAt time.Time          `json:"simulatedAt"`
	Summary     string             `json:"summary"`
	Fallback    bool               `json:"fallback"`
	TotalKw     float64            `json:"totalKw"`
	Allocations []model.Allocation `json:"allocations"`
}

// StatePublisher mirrors simulation snapshots to an MQTT broker as
// retained messages so dashboards joining late see the current state.
type StatePublisher struct {
	cli        pahoClient
	cfg        Config
	log        logger.Logger
	maxRetries int
	backoff    time.Duration
}

// NewStatePublisher connects to the broker and marks the publisher online.
func NewStatePublisher(cfg Config, log logger.Logger) (*StatePublisher, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	log.Infof("MQTT connected to %s", cfg.Broker)
	p := &StatePublisher{
		cli:        c,
		cfg:        cfg,
		log:        log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if err := p.publish(cfg.StatusTopic(), []byte(statusOnline)); err != nil {
		log.Warnf("status publish failed: %v", err)
	}
	return p, nil
}

// PublishState sends the snapshot and its allocation view.
func (p *StatePublisher) PublishState(st model.SimulationState) error {
	state, err := json.Marshal(StateMessage{
		MessageID:   uuid.NewString(),
		PublishedAt: time.Now().UTC(),
		State:       st,
	})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	alloc, err := json.Marshal(allocationMessage(st))
	if err != nil {
		return fmt.Errorf("encode allocation: %w", err)
	}
	if err := p.publish(p.cfg.StateTopic(), state); err != nil {
		return err
	}
	return p.publish(p.cfg.AllocationTopic(), alloc)
}

// Run publishes every snapshot received on states until ctx is done or the
// channel is closed. Publish failures are logged and do not stop the loop.
func (p *StatePublisher) Run(ctx context.Context, states <-chan model.SimulationState) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			if err := p.PublishState(st); err != nil {
				p.log.Errorf("state publish for tick %d failed: %v", st.TickCount, err)
			}
		}
	}
}

// Close marks the publisher offline and disconnects.
func (p *StatePublisher) Close() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	if err := p.publish(p.cfg.StatusTopic(), []byte(statusOffline)); err != nil {
		p.log.Warnf("status publish failed: %v", err)
	}
	p.cli.Disconnect(250)
}

func (p *StatePublisher) publish(topic string, payload []byte) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.cfg.QoS, true, payload)
		token.Wait()
		if err = token.Error(); err == nil {
			p.log.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.log.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, err)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	coremon.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	return fmt.Errorf("publish %s: %w", topic, err)
}

func allocationMessage(st model.SimulationState) AllocationMessage {
	msg := AllocationMessage{
		MessageID:   uuid.NewString(),
		Tick:        st.TickCount,
		SimulatedAt: st.SimulatedAt,
		Summary:     st.Rationale,
		Fallback:    st.FallbackUsed,
		Allocations: make([]model.Allocation, 0, len(st.Sessions)),
	}
	for _, s := range st.Sessions {
		msg.TotalKw += s.AllocatedKw
		msg.Allocations = append(msg.Allocations, model.Allocation{
			ChargerID:   s.ChargerID,
			AllocatedKw: s.AllocatedKw,
			Status:      s.Status,
			Reason:      s.Reason,
		})
	}
	return msg
}
