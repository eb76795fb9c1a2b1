package syncevents

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/privacy"
)

const (
	mqttConnectTimeout    = 30 * time.Second
	mqttSubscribeTimeout  = 10 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
	mqttHandlerTimeout    = 2 * time.Minute
)

// MQTTSubscriber subscribes to the sync topic of every route and hands each
// message to its handler. Subscriptions are renewed on every reconnect.
type MQTTSubscriber struct {
	settings conf.MQTTSettings
	clientID string
	routes   []Route
	log      logger.Logger

	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu     sync.Mutex
	client mqtt.Client
	ctx    context.Context
}

// NewMQTTSubscriber creates a subscriber. clientID is used when the settings
// carry none.
func NewMQTTSubscriber(settings conf.MQTTSettings, clientID string, routes []Route, log logger.Logger) *MQTTSubscriber {
	if settings.ClientID != "" {
		clientID = settings.ClientID
	}
	return &MQTTSubscriber{
		settings:  settings,
		clientID:  clientID,
		routes:    routes,
		log:       log.Module("syncevents.mqtt"),
		newClient: mqtt.NewClient,
	}
}

// Start connects to the broker. Handlers run with a context derived from ctx
// until Stop is called.
func (s *MQTTSubscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return errors.Newf("mqtt subscriber already started").
			Component("syncevents").
			Category(errors.CategoryState).
			Build()
	}
	s.ctx = context.WithoutCancel(ctx)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.settings.Broker)
	opts.SetClientID(s.clientID)
	opts.SetUsername(s.settings.Username)
	opts.SetPassword(s.settings.Password)
	opts.SetCleanSession(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(s.subscribeAll)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.Warn("connection to mqtt broker lost", logger.String("broker", privacy.RedactURL(s.settings.Broker)), logger.Error(err))
	})

	client := s.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return errors.Newf("mqtt connect to %s timed out", s.settings.Broker).
			Component("syncevents").
			Category(errors.CategoryTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(fmt.Errorf("mqtt connect to %s: %w", s.settings.Broker, err)).
			Component("syncevents").
			Category(errors.CategoryNetwork).
			Build()
	}
	s.client = client
	s.log.Info("connected to mqtt broker", logger.String("broker", privacy.RedactURL(s.settings.Broker)), logger.Int("topics", len(s.routes)))
	return nil
}

// Stop disconnects from the broker.
func (s *MQTTSubscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return
	}
	s.client.Disconnect(mqttDisconnectQuiesce)
	s.client = nil
}

func (s *MQTTSubscriber) subscribeAll(client mqtt.Client) {
	qos := byte(min(max(s.settings.QoS, 0), 2))
	for _, route := range s.routes {
		token := client.Subscribe(route.Topic, qos, s.onMessage(route))
		if !token.WaitTimeout(mqttSubscribeTimeout) {
			s.log.Error("mqtt subscribe timed out", logger.String("topic", route.Topic))
			continue
		}
		if err := token.Error(); err != nil {
			s.log.Error("mqtt subscribe failed", logger.String("topic", route.Topic), logger.Error(err))
			continue
		}
		s.log.Debug("subscribed", logger.String("topic", route.Topic), logger.String("domain", route.Domain))
	}
}

// onMessage returns the paho callback of route. Errors are logged; the engine
// already reports them through telemetry.
func (s *MQTTSubscriber) onMessage(route Route) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		base := s.ctx
		if base == nil {
			base = context.Background()
		}
		ctx, cancel := context.WithTimeout(base, mqttHandlerTimeout)
		defer cancel()

		if err := route.Handler.HandleSyncPayload(ctx, msg.Payload()); err != nil {
			s.log.Warn("sync event failed",
				logger.String("topic", msg.Topic()),
				logger.String("domain", route.Domain),
				logger.Error(err))
		}
	}
}
