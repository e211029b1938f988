package config

// Worker is the number of consumer goroutines started per queue. Queues not
// listed get one.
var Worker = map[string]int{
	"resource_status": 4,
	"model_ingest":    1,
}

// WorkerCount returns the consumer count for queueName.
func WorkerCount(queueName string) int {
	if n, ok := Worker[queueName]; ok && n > 0 {
		return n
	}
	return 1
}
