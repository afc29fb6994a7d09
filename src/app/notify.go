package app

import (
	"github.com/sirupsen/logrus"
)

// Notifier surfaces short-lived status messages to the user.
type Notifier interface {
	Notify(message string, success bool)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(message string, success bool) {
	if success {
		n.Log.Info(message)
		return
	}
	n.Log.Warn(message)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, bool) {}
