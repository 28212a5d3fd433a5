package sx126x

import "sync/atomic"

type counters struct {
	packetsSent        atomic.Uint64
	packetsReceived    atomic.Uint64
	malformedFrames    atomic.Uint64
	filteredFrames     atomic.Uint64
	malformedResponses atomic.Uint64
	configRetries      atomic.Uint64
}

// Stats is a snapshot of the driver's counters
type Stats struct {
	PacketsSent        uint64 `json:"packets_sent"`
	PacketsReceived    uint64 `json:"packets_received"`
	MalformedFrames    uint64 `json:"malformed_frames"`
	FilteredFrames     uint64 `json:"filtered_frames"`
	MalformedResponses uint64 `json:"malformed_responses"`
	ConfigRetries      uint64 `json:"config_retries"`
}

// Stats returns the current counters. It may be called from any goroutine.
func (d *Driver) Stats() Stats {
	return Stats{
		PacketsSent:        d.stats.packetsSent.Load(),
		PacketsReceived:    d.stats.packetsReceived.Load(),
		MalformedFrames:    d.stats.malformedFrames.Load(),
		FilteredFrames:     d.stats.filteredFrames.Load(),
		MalformedResponses: d.stats.malformedResponses.Load(),
		ConfigRetries:      d.stats.configRetries.Load(),
	}
}
