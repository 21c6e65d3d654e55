package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"

	infrapubsub "github.com/finbook/event-pipeline-service/infra/pubsub"
	"github.com/finbook/event-pipeline-service/infra/pubsub/factory"
)

// PublisherProvider builds publishers bound to one exchange.
type PublisherProvider struct {
	factory factory.Factory
}

func NewPublisherProvider(p infrapubsub.Provider) *PublisherProvider {
	return &PublisherProvider{factory: p.GetFactory()}
}

func (pp *PublisherProvider) Build(exchange string) (message.Publisher, error) {
	return pp.factory.BuildPublisher(&factory.PublisherConfig{
		Exchange: factory.ExchangeConfig{
			Name:    exchange,
			Type:    "topic",
			Durable: true,
		},
	})
}

// SubscriberProvider builds one consumer group's subscriber: a durable queue
// bound to the exchange by topic.
type SubscriberProvider struct {
	factory factory.Factory
}

func NewSubscriberProvider(p infrapubsub.Provider) *SubscriberProvider {
	return &SubscriberProvider{factory: p.GetFactory()}
}

func (sp *SubscriberProvider) Build(queue, exchange string, prefetch int) (message.Subscriber, error) {
	return sp.factory.BuildSubscriber(&factory.SubscriberConfig{
		Exchange: factory.ExchangeConfig{
			Name:    exchange,
			Type:    "topic",
			Durable: true,
		},
		Queue:         queue,
		PrefetchCount: prefetch,
	})
}
