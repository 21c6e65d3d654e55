package pubsub

// Exchange names shared by producers and consumer groups.
const (
	ExchangeActivity = "fin_activity.events"
	ExchangeMutation = "fin_category.events"
	ExchangeLinking  = "fin_linking.events"
)
