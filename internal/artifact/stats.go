package artifact

// Stats is a point-in-time snapshot of this Engine's ingestion activity
// since process start, exposed for operational visibility (spec §4.4
// supplement; no equivalent in the distilled spec's GenerationReport, which
// only covers a single run).
type Stats struct {
	RunsCompleted    int
	ArtifactsCreated int
	BytesProcessed   int64
	ErrorsSeen       int
}

// Stats returns a copy of the engine's cumulative run statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
