package engine

import "log/slog"

// LogObserver writes engine events to a slog.Logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns an observer logging to logger, or to slog.Default
// when logger is nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// OnEvent implements Observer.
func (l *LogObserver) OnEvent(ev Event) {
	switch ev.Kind {
	case EventSaveAttached:
		l.logger.Debug("anchor attached", "seq", ev.Seq, "handle", ev.Detail, "position", ev.Position.String())
	case EventSaveCommitted:
		l.logger.Info("anchor saved", "seq", ev.Seq, "index", ev.Index, "id", ev.ID.String())
	case EventSaveWarning:
		l.logger.Warn("anchor not persisted", "seq", ev.Seq, "handle", ev.Detail, "error", ev.Err)
	case EventSaveFailed:
		l.logger.Error("anchor attach failed", "seq", ev.Seq, "trackable", ev.Detail, "error", ev.Err)
	case EventLoadState:
		attrs := []any{"seq", ev.Seq, "state", ev.State.String()}
		if ev.HasIndex {
			attrs = append(attrs, "index", ev.Index)
		}
		l.logger.Debug("load state", attrs...)
	case EventTrackingPoll:
		l.logger.Debug("tracking poll", "seq", ev.Seq, "stable", ev.Stable)
	case EventResolveRequest:
		l.logger.Debug("resolving anchor", "seq", ev.Seq, "index", ev.Index, "id", ev.ID.String())
	case EventOutcome:
		l.logOutcome(ev)
	case EventPlaced:
		l.logger.Debug("content placed", "seq", ev.Seq, "position", ev.Position.String(), "rotation", ev.Rotation.String())
	}
}

func (l *LogObserver) logOutcome(ev Event) {
	o := ev.Outcome
	if o == nil {
		return
	}
	switch o.Kind {
	case OutcomeResolved:
		l.logger.Info("anchor loaded", "seq", ev.Seq, "index", o.Index, "position", o.Position.String())
	case OutcomeFallback:
		l.logger.Warn("anchor not resolved, placed at fallback",
			"seq", ev.Seq, "index", o.Index, "reason", o.Reason, "position", o.Position.String())
	case OutcomeSkipped:
		l.logger.Warn("anchor record skipped", "seq", ev.Seq, "index", o.Index, "reason", o.Reason, "error", o.Err)
	}
}
