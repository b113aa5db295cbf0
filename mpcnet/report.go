package mpcnet

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Stats is a snapshot of a session's traffic counters. Fabricated stub
// traffic is counted identically to real traffic, so stats from any
// transport mode are directly comparable.
type Stats struct {
	Party     int    `cbor:"party"`
	Mode      string `cbor:"mode"`
	Rounds    uint64 `cbor:"rounds"`
	BytesSent uint64 `cbor:"bytes_sent"`
	BytesRecv uint64 `cbor:"bytes_recv"`
	MsgsSent  uint64 `cbor:"msgs_sent"`
	MsgsRecv  uint64 `cbor:"msgs_recv"`
	ElapsedNS int64  `cbor:"elapsed_ns"`
}

// Stats returns the session's current traffic counters.
func (s *Session) Stats() Stats {
	return Stats{
		Party:     s.cfg.ID,
		Mode:      s.tr.mode().String(),
		Rounds:    s.round.Load(),
		BytesSent: s.bytesSent.Load(),
		BytesRecv: s.bytesRecv.Load(),
		MsgsSent:  s.msgsSent.Load(),
		MsgsRecv:  s.msgsRecv.Load(),
		ElapsedNS: int64(time.Since(s.start)),
	}
}

// Report aggregates the per-party stats of one protocol run.
type Report struct {
	Label   string  `cbor:"label"`
	Parties []Stats `cbor:"parties"`
}

// NewReport snapshots every session's counters under a label.
func NewReport(label string, sessions []*Session) Report {
	r := Report{Label: label, Parties: make([]Stats, len(sessions))}
	for i, s := range sessions {
		r.Parties[i] = s.Stats()
	}
	return r
}

// TotalBytes sums bytes sent across all parties.
func (r Report) TotalBytes() uint64 {
	var total uint64
	for _, p := range r.Parties {
		total += p.BytesSent
	}
	return total
}

// reportWire is a method-less copy of Report so the CBOR codec encodes it
// as a plain struct instead of re-entering the Binary(Un)Marshaler methods.
type reportWire Report

// MarshalBinary encodes the report as canonical CBOR.
func (r Report) MarshalBinary() ([]byte, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(reportWire(r))
}

// UnmarshalBinary decodes a CBOR report.
func (r *Report) UnmarshalBinary(data []byte) error {
	if err := cbor.Unmarshal(data, (*reportWire)(r)); err != nil {
		return fmt.Errorf("%w: report: %v", ErrSerialization, err)
	}
	return nil
}
