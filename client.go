// Copyright 2024 Kafka Bridge Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kafkabridge relays messages between a broker topic and PubNub
// channels in both directions.
package kafkabridge

import (
	"context"
	"log/slog"

	"github.com/glimte/kafka-bridge/bridge"
	"github.com/glimte/kafka-bridge/broker"
	"github.com/glimte/kafka-bridge/broker/kafka"
	"github.com/glimte/kafka-bridge/broker/rabbitmq"
	"github.com/glimte/kafka-bridge/config"
	"github.com/glimte/kafka-bridge/monitor"
	"github.com/glimte/kafka-bridge/pubnub"
)

// Version is set at build time
var Version = "dev"

// Queued messages in either direction before the health check degrades
const (
	backlogWarning  = 1000
	backlogCritical = 10000
)

// Client wires the configured broker driver and PubNub into a bridge
type Client struct {
	cfg       *config.Config
	logger    *slog.Logger
	collector *monitor.Collector
	registry  *monitor.Registry
	bridge    *bridge.Bridge
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

type clientConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// NewClient builds the bridge from cfg. Nothing connects until Run.
func NewClient(cfg *config.Config, options ...ClientOption) (*Client, error) {
	cc := &clientConfig{logger: slog.Default()}
	for _, opt := range options {
		opt(cc)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       cfg,
		logger:    cc.logger,
		collector: monitor.NewCollector(),
		registry:  monitor.NewRegistry(),
	}

	c.bridge = bridge.New(c.endpoints(), cfg.Topic,
		bridge.WithLogger(c.logger),
		bridge.WithRecorder(c.collector),
		bridge.WithRetryPolicy(cfg.RetryPolicy()),
		bridge.WithChannelRoot(cfg.ChannelRoot),
		bridge.WithPublishRate(cfg.PublishRate),
	)

	for _, stage := range []string{
		bridge.StageBrokerConsume,
		bridge.StagePubSubPublish,
		bridge.StagePubSubSubscribe,
		bridge.StageBrokerProduce,
	} {
		c.registry.Register(monitor.NewStageChecker(c.collector, stage))
	}
	c.registry.Register(monitor.NewBacklogChecker(c.bridge.Backlog, backlogWarning, backlogCritical))
	c.registry.SetMetadata("version", Version)
	c.registry.SetMetadata("driver", cfg.BrokerDriver)
	c.registry.SetMetadata("topic", cfg.Topic)
	c.registry.SetMetadata("channel", cfg.SubscribeChannel())

	return c, nil
}

// Run relays messages until ctx is done. Health and stats reporting run
// alongside when configured.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("Starting bridge", "version", Version, "config", c.cfg)
	c.logger.Info("Dashboard: " + c.cfg.DashboardURL())

	if c.cfg.HealthAddr != "" {
		go func() {
			if err := monitor.Serve(ctx, c.cfg.HealthAddr, c.registry, c.logger); err != nil {
				c.logger.Error("Health endpoint failed", "addr", c.cfg.HealthAddr, "error", err)
			}
		}()
	}

	reporter := monitor.NewReporter(c.collector, c.cfg.StatsInterval,
		monitor.WithReporterLogger(c.logger),
		monitor.WithBacklog(c.bridge.Backlog))
	go reporter.Run(ctx)

	return c.bridge.Run(ctx)
}

// Bridge returns the underlying bridge
func (c *Client) Bridge() *bridge.Bridge {
	return c.bridge
}

// Collector returns the stage counters
func (c *Client) Collector() *monitor.Collector {
	return c.collector
}

// Health returns the health registry
func (c *Client) Health() *monitor.Registry {
	return c.registry
}

func (c *Client) endpoints() bridge.Endpoints {
	cfg := c.cfg

	pubnubOptions := []pubnub.Option{
		pubnub.WithLogger(c.logger),
		pubnub.WithClientName(cfg.Agent),
		pubnub.WithAgent(cfg.Agent),
		pubnub.WithRetryPolicy(cfg.RetryPolicy()),
		pubnub.WithReadTimeout(cfg.ReadTimeout),
		pubnub.WithStrictStatus(cfg.StrictStatus),
	}

	endpoints := bridge.Endpoints{
		PubSubPublisher: func(ctx context.Context) (bridge.PubSubPublisher, error) {
			return pubnub.NewPublisher(ctx, cfg.PubNubHost, cfg.PublishKey, cfg.SubscribeKey, pubnubOptions...)
		},
		PubSubSubscriber: func(ctx context.Context) (bridge.PubSubSubscriber, error) {
			return pubnub.NewSubscriber(ctx, cfg.PubNubHost, cfg.SubscribeChannel(), cfg.SubscribeKey, pubnubOptions...)
		},
	}

	switch cfg.BrokerDriver {
	case config.DriverRabbitMQ:
		endpoints.Subscribe = c.rabbitSubscribe
		endpoints.BrokerPublisher = c.rabbitPublisher
	default:
		kafkaOptions := []kafka.Option{
			kafka.WithLogger(c.logger),
			kafka.WithSASLPlain(cfg.SASLUsername, cfg.SASLPassword),
		}
		endpoints.Subscribe = func(ctx context.Context) (broker.Subscription, error) {
			return kafka.NewSubscriber(cfg.KafkaBrokers, kafkaOptions...).
				Subscribe(ctx, cfg.Topic, cfg.Group, cfg.Partition)
		}
		endpoints.BrokerPublisher = func(context.Context) (broker.Publisher, error) {
			return kafka.NewPublisher(cfg.KafkaBrokers, kafkaOptions...), nil
		}
	}

	return endpoints
}

// Each RabbitMQ stage owns its connection; closing the subscription or
// publisher closes it too.

func (c *Client) rabbitConnect(ctx context.Context) (*rabbitmq.ConnectionManager, error) {
	cm := rabbitmq.NewConnectionManager(c.cfg.RabbitMQURL,
		rabbitmq.WithLogger(c.logger),
		rabbitmq.WithRetryPolicy(c.cfg.RetryPolicy()))
	if err := cm.Connect(ctx); err != nil {
		return nil, err
	}
	return cm, nil
}

func (c *Client) rabbitSubscribe(ctx context.Context) (broker.Subscription, error) {
	cm, err := c.rabbitConnect(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := rabbitmq.NewSubscriber(cm, rabbitmq.WithSubscriberLogger(c.logger)).
		Subscribe(ctx, c.cfg.Topic, c.cfg.Group, c.cfg.Partition)
	if err != nil {
		cm.Close()
		return nil, err
	}
	return ownedSubscription{Subscription: sub, conn: cm}, nil
}

func (c *Client) rabbitPublisher(ctx context.Context) (broker.Publisher, error) {
	cm, err := c.rabbitConnect(ctx)
	if err != nil {
		return nil, err
	}

	pub := rabbitmq.NewPublisher(cm,
		rabbitmq.WithPartition(c.cfg.Partition),
		rabbitmq.WithPublisherLogger(c.logger))
	return ownedPublisher{Publisher: pub, conn: cm}, nil
}

type ownedSubscription struct {
	broker.Subscription
	conn *rabbitmq.ConnectionManager
}

func (s ownedSubscription) Close() error {
	s.Subscription.Close()
	return s.conn.Close()
}

type ownedPublisher struct {
	broker.Publisher
	conn *rabbitmq.ConnectionManager
}

func (p ownedPublisher) Close() error {
	p.Publisher.Close()
	return p.conn.Close()
}
