package models

import "time"

type ContextKey string

const (
	TenantIDKey ContextKey = "tenant_id"
)

// ActivityType tags entries in the sync activity trail.
type ActivityType string

const (
	ActivityQueueCreated ActivityType = "queue_created"
	ActivityLineSync     ActivityType = "line_sync"
	ActivityRetry        ActivityType = "retry"
	ActivityForceDone    ActivityType = "force_done"
	ActivityCleanup      ActivityType = "cleanup"
	ActivityReclaim      ActivityType = "reclaim"
	ActivityRunFinished  ActivityType = "run_finished"
)

// ActivityStatus is the coarse outcome attached to an activity entry.
type ActivityStatus string

const (
	ActivityStatusSuccess   ActivityStatus = "success"
	ActivityStatusFailed    ActivityStatus = "failed"
	ActivityStatusCompleted ActivityStatus = "completed"
	ActivityStatusStarted   ActivityStatus = "started"
)

// Log is the application log record written by the async zap tee core.
type Log struct {
	Message      string    `bson:"message"`
	IpAddress    string    `bson:"ip_address,omitempty"`
	Caller       string    `bson:"caller,omitempty"`
	LogLevelId   int       `bson:"log_level_id"`
	AppId        string    `bson:"app_id"`
	CreatedOnUtc time.Time `bson:"created_on_utc"`
}
