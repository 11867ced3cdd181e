package domain

import "time"

type StreamSessionID string

// StreamSession is a time-bounded handle to locally stored media
// segments for live doorbell playback. Touch extends its lifetime;
// absence of touch past the idle timeout invalidates it.
type StreamSession struct {
	ID         StreamSessionID
	UserID     UserID
	DeviceID   DeviceID
	Provider   Provider
	Dir        string
	CreatedAt  time.Time
	LastActive time.Time
}
