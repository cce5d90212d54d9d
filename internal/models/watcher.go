package models

import "time"

// WatcherFamily — the two historical watcher variants. They share one
// monitor implementation; the family selects the notification cooldown.
type WatcherFamily string

const (
	FamilyAlarm WatcherFamily = "alarm"
	FamilyAlert WatcherFamily = "alert"
)

// Watcher — a persisted price-condition rule evaluated against the latest
// closed candle of its (symbol, interval).
type Watcher struct {
	ID               string
	Family           WatcherFamily
	Symbol           string
	Interval         Interval
	Expression       string
	Status           EntityStatus
	ChatID           int64
	LastNotification time.Time
}
