package goGateway

// MetricsSnapshot returns a point-in-time copy of the gateway counters. It is empty when
// metrics are disabled.
func (g *Gateway) MetricsSnapshot() MetricsSnapshot {
	return g.obs.metrics.Snapshot()
}

// MetricValue reads a single counter.
func (g *Gateway) MetricValue(id MetricID) uint64 {
	return g.obs.metrics.Value(id)
}

// EventsDropped counts events discarded because the dispatcher buffer was full.
func (g *Gateway) EventsDropped() uint64 {
	return g.obs.dispatcher.Dropped()
}

// EventStats reports event delivery counters. It is zero when events are disabled.
func (g *Gateway) EventStats() EventStats {
	return g.obs.dispatcher.Stats()
}
