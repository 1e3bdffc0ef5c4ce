package orders

const (
	TopicOrderPlaced = "order.placed"
	TopicOrderStatus = "order.status"
)

// TopicFor routes an event type to its topic.
func TopicFor(eventType string) string {
	if eventType == EventOrderPlaced {
		return TopicOrderPlaced
	}
	return TopicOrderStatus
}

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
