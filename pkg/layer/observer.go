package layer

import "github.com/layerkit/layerkit/pkg/telemetry"

// telemetryObserver reports record activity to logs, metrics and events.
type telemetryObserver struct {
	tel *telemetry.Telemetry
}

func (o telemetryObserver) StateChanged(c StateChange) {
	o.tel.LayerStateChanged(c.LayerID, string(c.LayerType), string(c.From), string(c.To))
}

func (o telemetryObserver) IdentifyCompleted(r IdentifyReport) {
	o.tel.IdentifyCompleted(r.RequestID, r.LayerID, string(r.LayerType), r.Hits, r.Duration, r.Err)
}
