package pubsub

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/finbook/event-pipeline-service/infra/pubsub/factory"
)

// Provider hands out the broker factory configured for this process.
type Provider interface {
	GetFactory() factory.Factory
}

type amqpProvider struct {
	factory factory.Factory
}

// NewAMQPProvider wires the AMQP-backed factory. Any broker offering topic
// publish, partitioned consumer groups and manual acknowledgment could be
// substituted behind the same interface.
func NewAMQPProvider(uri string, logger watermill.LoggerAdapter) Provider {
	return &amqpProvider{factory: factory.NewAMQPFactory(uri, logger)}
}

func (p *amqpProvider) GetFactory() factory.Factory {
	return p.factory
}
