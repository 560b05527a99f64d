package models

import "time"

// Event types
const (
	EventTypeSyncStarted   = "SYNC_STARTED"
	EventTypeSyncCompleted = "SYNC_COMPLETED"
	EventTypeSyncFailed    = "SYNC_FAILED"
	EventTypeSyncCanceled  = "SYNC_CANCELED"
	EventTypeFeedGenerated = "FEED_GENERATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncStartedEvent published when a sync run begins
type SyncStartedEvent struct {
	BaseEvent
	SyncType string `json:"sync_type"`
}

// SyncCompletedEvent published when a sync run finishes successfully
type SyncCompletedEvent struct {
	BaseEvent
	SyncType          string `json:"sync_type"`
	ProductsProcessed int    `json:"products_processed"`
	ProductsAdded     int    `json:"products_added"`
	ProductsUpdated   int    `json:"products_updated"`
	ErrorsCount       int    `json:"errors_count"`
	DurationSeconds   int    `json:"duration_seconds"`
}

// SyncFailedEvent published when a sync run aborts with a run-level error
type SyncFailedEvent struct {
	BaseEvent
	SyncType string `json:"sync_type"`
	Reason   string `json:"reason"`
}

// SyncCanceledEvent published when a running sync is canceled
type SyncCanceledEvent struct {
	BaseEvent
	SyncType          string `json:"sync_type"`
	ProductsProcessed int    `json:"products_processed"`
}

// FeedGeneratedEvent published after a feed export is written
type FeedGeneratedEvent struct {
	BaseEvent
	Filename   string `json:"filename"`
	RowCount   int    `json:"row_count"`
	FileSizeKB int64  `json:"file_size_kb"`
}
