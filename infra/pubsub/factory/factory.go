package factory

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

// ExchangeConfig names the AMQP exchange a publisher or subscriber binds to.
type ExchangeConfig struct {
	Name    string
	Type    string
	Durable bool
}

// PublisherConfig describes one publisher's topology.
type PublisherConfig struct {
	Exchange ExchangeConfig
}

// SubscriberConfig describes one consumer group's queue and binding.
type SubscriberConfig struct {
	Exchange ExchangeConfig
	// Queue is the durable, shared consumer-group queue. Every instance of a
	// consumer group consumes from the same queue, giving competing-consumer
	// semantics within the group and fan-out across groups.
	Queue string
	// PrefetchCount bounds unacked deliveries per worker.
	PrefetchCount int
}

// Factory builds watermill publishers and subscribers over one shared AMQP
// connection.
type Factory interface {
	BuildPublisher(cfg *PublisherConfig) (message.Publisher, error)
	BuildSubscriber(cfg *SubscriberConfig) (message.Subscriber, error)
}

type amqpFactory struct {
	uri    string
	logger watermill.LoggerAdapter
}

func NewAMQPFactory(uri string, logger watermill.LoggerAdapter) Factory {
	return &amqpFactory{uri: uri, logger: logger}
}

func (f *amqpFactory) BuildPublisher(cfg *PublisherConfig) (message.Publisher, error) {
	conf := f.baseConfig(cfg.Exchange, "")

	pub, err := amqp.NewPublisher(conf, f.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub factory: publisher for %s: %w", cfg.Exchange.Name, err)
	}
	return pub, nil
}

func (f *amqpFactory) BuildSubscriber(cfg *SubscriberConfig) (message.Subscriber, error) {
	conf := f.baseConfig(cfg.Exchange, cfg.Queue)
	if cfg.PrefetchCount > 0 {
		conf.Consume.Qos.PrefetchCount = cfg.PrefetchCount
	}

	sub, err := amqp.NewSubscriber(conf, f.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub factory: subscriber %s on %s: %w", cfg.Queue, cfg.Exchange.Name, err)
	}
	return sub, nil
}

// baseConfig maps logical watermill topics onto a topic exchange: the topic
// is both the publish routing key and the queue binding key.
func (f *amqpFactory) baseConfig(exchange ExchangeConfig, queue string) amqp.Config {
	conf := amqp.NewDurablePubSubConfig(f.uri, amqp.GenerateQueueNameConstant(queue))

	conf.Exchange.GenerateName = func(string) string { return exchange.Name }
	conf.Exchange.Type = exchangeType(exchange)
	conf.Exchange.Durable = exchange.Durable

	conf.QueueBind.GenerateRoutingKey = func(topic string) string { return topic }
	conf.Publish.GenerateRoutingKey = func(topic string) string { return topic }

	return conf
}

func exchangeType(exchange ExchangeConfig) string {
	if exchange.Type == "" {
		return "topic"
	}
	return exchange.Type
}
