// Package chunkup - Network measurement and classification
//
// This file implements the network probe: timed round trips of known
// payload size that yield upload/download throughput and latency, plus
// the classification the planner keys its decisions on. Probing fails
// soft; an upload must be able to proceed without a successful probe.
package chunkup

import (
	"context"

	"github.com/rs/zerolog"
)

// Prober produces a fresh NetworkCondition. The interface exists so the
// batch can be driven by a fake probe in tests; the real implementation
// is NetworkProbe.
type Prober interface {
	Measure(ctx context.Context) NetworkCondition
}

// NetworkProbe measures against the live backend through a Client.
// Construct explicitly and pass to NewBatch; the probe holds no hidden
// process-wide state.
type NetworkProbe struct {
	client *Client
	tuning Tuning
	logger zerolog.Logger
}

// NewNetworkProbe creates a probe using the given client and policy.
func NewNetworkProbe(client *Client, tuning Tuning, logger zerolog.Logger) *NetworkProbe {
	return &NetworkProbe{client: client, tuning: tuning, logger: logger}
}

// Measure runs one probe pass: latency ping, timed download, timed
// upload. Any step failing degrades to the conservative medium
// classification with whatever partial measurements succeeded; Measure
// never returns an error. Callers bound the pass with a context deadline.
func (p *NetworkProbe) Measure(ctx context.Context) NetworkCondition {
	cond := NetworkCondition{Classification: NetworkMedium}

	latency, err := p.client.Ping(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("probe ping failed, defaulting to medium")
		return cond
	}
	cond.LatencyMs = latency

	down, err := p.client.ProbeDownload(ctx, p.tuning.ProbeDownloadBytes)
	if err != nil {
		p.logger.Warn().Err(err).Msg("probe download failed, defaulting to medium")
		return cond
	}
	cond.DownloadMbps = down

	up, err := p.client.ProbeUpload(ctx, probePayload(p.tuning.ProbeUploadBytes))
	if err != nil {
		p.logger.Warn().Err(err).Msg("probe upload failed, defaulting to medium")
		return cond
	}
	cond.UploadMbps = up

	cond.Classification = classify(cond, p.tuning)
	p.logger.Debug().
		Float64("latency_ms", cond.LatencyMs).
		Float64("download_mbps", cond.DownloadMbps).
		Float64("upload_mbps", cond.UploadMbps).
		Str("class", string(cond.Classification)).
		Msg("network probe complete")
	return cond
}

// classify maps a full measurement onto a class. Upload throughput rules
// because this is an upload subsystem; latency gates the top tiers where
// per-request overhead dominates.
func classify(cond NetworkCondition, t Tuning) NetworkClass {
	switch {
	case cond.UploadMbps >= t.ExcellentMinMbps && cond.LatencyMs <= t.ExcellentMaxLatencyMs:
		return NetworkExcellent
	case cond.UploadMbps >= t.StrongMinMbps && cond.LatencyMs <= t.StrongMaxLatencyMs:
		return NetworkStrong
	case cond.UploadMbps >= t.MediumMinMbps:
		return NetworkMedium
	default:
		return NetworkWeak
	}
}

// probePayload builds an incompressible-enough upload body of n bytes.
func probePayload(n int64) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i*31 + 7)
	}
	return payload
}
