package status

import (
	"time"

	"github.com/opendocs/chatstream/internal/pubsub"
)

// Level represents the severity level of a status message
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelDebug Level = "debug"
)

// StatusMessage is a transient, user-visible notice (stall advisories,
// cancellation notices) published alongside the message stream.
type StatusMessage struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Service defines the interface for the status service
type Service interface {
	pubsub.Subscriber[StatusMessage]
	Info(message string)
	Warn(message string)
	Error(message string)
	Debug(message string)
}

type service struct {
	*pubsub.Broker[StatusMessage]
}

func (s *service) Info(message string)  { s.publish(LevelInfo, message) }
func (s *service) Warn(message string)  { s.publish(LevelWarn, message) }
func (s *service) Error(message string) { s.publish(LevelError, message) }
func (s *service) Debug(message string) { s.publish(LevelDebug, message) }

func (s *service) publish(level Level, message string) {
	statusMsg := StatusMessage{
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	s.Publish(pubsub.EventTypeCreated, statusMsg)
}

// NewService creates a new status service
func NewService() Service {
	broker := pubsub.NewBroker[StatusMessage]()
	return &service{
		Broker: broker,
	}
}
