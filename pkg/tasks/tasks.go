// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IndexTask asks a consumer to build the vector namespace of one document ahead of the first question.
type IndexTask struct {
	FileID string `json:"file_id"`
	UserID string `json:"user_id"`
}
