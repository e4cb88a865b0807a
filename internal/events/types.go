package events

import "time"

// Event enumerates high-level topics inside the fleet core.
type Event string

const (
	EventPositionOpened  Event = "position.opened"
	EventPositionScaled  Event = "position.scaled"
	EventPositionClosed  Event = "position.closed"
	EventWorkerStarted   Event = "worker.started"
	EventWorkerStopped   Event = "worker.stopped"
	EventMarginAlert     Event = "risk.margin_alert"
)

// PositionEvent carries a position lifecycle change.
type PositionEvent struct {
	WorkerID string
	Symbol   string
	Side     string
	Qty      float64
	Entry    float64
	Exit     float64
	Leverage int
	ROI      float64
	Profit   float64
	Reason   string
	At       time.Time
}

// WorkerEvent carries a worker lifecycle change.
type WorkerEvent struct {
	WorkerID string
	Symbol   string
	Reason   string
	At       time.Time
}

// MarginEvent carries a margin safety breach.
type MarginEvent struct {
	Ratio     float64
	Threshold float64
	At        time.Time
}
