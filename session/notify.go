package session

import "github.com/CrowderSoup/boardsync/logger"

// Notifier shows transient messages to the viewer. Calls must not block.
type Notifier interface {
	Warn(msg string)
	Error(msg string)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct{}

func (LogNotifier) Warn(msg string)  { logger.Warn().Msg(msg) }
func (LogNotifier) Error(msg string) { logger.Error().Msg(msg) }
