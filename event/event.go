// Package event implements ONVIF pull-point subscriptions fed by a
// synthetic motion detector.
package event

import (
	"time"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// TopicMotionAlarm is the only topic the simulated device publishes
const TopicMotionAlarm = "tns1:VideoSource/MotionAlarm"

// Property operations as carried in tt:Message/@PropertyOperation
const (
	OperationInitialized = "Initialized"
	OperationChanged     = "Changed"
)

// Config tunes the event engine
type Config struct {
	// MotionInterval is the cadence of the synthetic motion toggle
	MotionInterval time.Duration `yaml:"motion_interval" env:"MOTION_INTERVAL"`
	// DefaultTermination applies when a client asks for no lifetime
	DefaultTermination time.Duration `yaml:"default_subscription" env:"DEFAULT_SUBSCRIPTION"`
	// MaxTermination caps requested subscription lifetimes
	MaxTermination time.Duration `yaml:"max_subscription" env:"MAX_SUBSCRIPTION"`
	// QueueSize bounds the pending events per subscription
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// MaxPullTimeout caps the long-poll wait of PullMessages
	MaxPullTimeout time.Duration `yaml:"max_pull_timeout" env:"MAX_PULL_TIMEOUT"`
	// SourceToken names the video source in event messages
	SourceToken string `yaml:"source_token" env:"SOURCE_TOKEN"`
}

// DefaultConfig returns the settings of the reference device
func DefaultConfig() Config {
	return Config{
		MotionInterval:     30 * time.Second,
		DefaultTermination: 10 * time.Minute,
		MaxTermination:     time.Hour,
		QueueSize:          50,
		MaxPullTimeout:     60 * time.Second,
		SourceToken:        onvif.DefaultVideoSourceToken,
	}
}

// MotionEvent is one notification queued for a subscriber
type MotionEvent struct {
	Time      time.Time
	State     bool
	Topic     string
	Source    string
	Operation string
}

// Subscription describes a pull point as seen by its client
type Subscription struct {
	Token   string
	Created time.Time
	Expires time.Time
	// LastState is the motion state last delivered to the client
	LastState bool
}

// PullResult is the outcome of a PullMessages call
type PullResult struct {
	CurrentTime     time.Time
	TerminationTime time.Time
	Events          []MotionEvent
}
