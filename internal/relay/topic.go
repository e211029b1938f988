// Package relay polls job status on the engine and fans the resulting events
// out to the topic subscribers of each job.
package relay

import "strings"

// TopicPrefix namespaces every job topic.
const TopicPrefix = "savana_"

// Topic returns the subscriber topic of a job. Hyphens are not allowed in
// topic names and become underscores, so ids differing only in those two
// characters share a topic.
func Topic(resourceID string) string {
	return TopicPrefix + strings.ReplaceAll(resourceID, "-", "_")
}
