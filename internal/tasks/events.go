package tasks

import (
	"time"

	"github.com/desertthunder/tunesync/internal/models"
)

// Phase identifies which stage of a job an Event belongs to.
type Phase int

const (
	PhaseEnumerate Phase = iota
	PhaseProcess
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseEnumerate:
		return "enumerate"
	case PhaseProcess:
		return "process"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is a single progress update emitted while a job runs. Track
// events carry the source track, the outcome status, and the match
// confidence; phase events carry only a message.
type Event struct {
	Timestamp time.Time
	Phase     Phase
	Playlist  string
	Track     *models.Track
	Outcome   models.SyncStatus
	Score     float64
	Step      int
	Total     int
	Message   string
	Err       string
}

func phaseEvent(phase Phase, playlist, message string) Event {
	return Event{Timestamp: time.Now(), Phase: phase, Playlist: playlist, Message: message}
}

func trackEvent(playlist string, track models.Track, record *models.SyncRecord, step, total int) Event {
	ev := Event{
		Timestamp: time.Now(),
		Phase:     PhaseProcess,
		Playlist:  playlist,
		Track:     &track,
		Step:      step,
		Total:     total,
	}
	if record != nil {
		ev.Outcome = record.Status
		ev.Score = record.Confidence
		ev.Message = record.Reason
	}
	return ev
}

// sendProgress delivers ev without blocking. Slow or absent consumers
// never stall the job.
func sendProgress(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}
