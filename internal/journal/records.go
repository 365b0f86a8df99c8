package journal

import (
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/storage"
)

// EntryRecord builds the analytics row for a filled buy. Latency runs from
// intent creation to the fill.
func EntryRecord(ev orchestrator.TradeEvent) *storage.TradeRecord {
	if ev.Fill == nil {
		return nil
	}
	f := ev.Fill
	r := &storage.TradeRecord{
		Signature:   f.Signature,
		Kind:        storage.TradeEntry,
		Token:       f.Token,
		Path:        f.Path,
		Endpoint:    f.Endpoint,
		InAmount:    f.InAmount,
		OutAmount:   f.OutAmount,
		Price:       f.Price,
		FeeLamports: f.FeeLamports,
		TipLamports: f.TipLamports,
		Attempts:    submitted(ev.Attempts),
		Timestamp:   f.Timestamp,
	}
	if ev.Cluster != nil {
		r.ClusterID = ev.Cluster.ID
	}
	if ev.Intent != nil && !ev.Intent.CreatedAt.IsZero() {
		r.LatencyMs = f.Timestamp.Sub(ev.Intent.CreatedAt).Milliseconds()
	}
	return r
}

// ExitRecord builds the analytics row for a closing sell. Latency runs from
// the exit trigger to the fill.
func ExitRecord(ev orchestrator.ExitEvent) *storage.TradeRecord {
	if ev.Fill == nil || ev.Position == nil {
		return nil
	}
	f, p := ev.Fill, ev.Position
	r := &storage.TradeRecord{
		Signature:   f.Signature,
		Kind:        storage.TradeExit,
		Token:       f.Token,
		ClusterID:   p.ClusterID,
		Path:        f.Path,
		Endpoint:    f.Endpoint,
		InAmount:    f.InAmount,
		OutAmount:   f.OutAmount,
		Price:       f.Price,
		FeeLamports: f.FeeLamports,
		TipLamports: f.TipLamports,
		Attempts:    p.ExitAttempts,
		ExitReason:  p.ExitReason,
		PnLLamports: p.RealizedPnL,
		Timestamp:   f.Timestamp,
	}
	if !p.ExitStartedAt.IsZero() {
		r.LatencyMs = f.Timestamp.Sub(p.ExitStartedAt).Milliseconds()
	}
	return r
}

// submitted counts attempts that reached a path.
func submitted(attempts []execution.Attempt) int {
	n := 0
	for _, a := range attempts {
		if a.Status != execution.AttemptSkipped {
			n++
		}
	}
	return n
}
