// pool.go implements a pool for reusing astiav.Packet objects.

// Package packet holds the libav packet pool shared by the demuxer and the decoder.
package packet

import (
	"time"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/videoinput/avconv"
	"github.com/xaionaro-go/videoinput/pool"
	"github.com/xaionaro-go/videoinput/types"
)

var Pool = pool.NewPool(
	astiav.AllocPacket,
	func(p *astiav.Packet) { p.Unref() },
	func(p *astiav.Packet) { p.Free() },
)

// ToChunk copies the payload of pkt into a new Chunk; timestamps are
// converted from timeBase. The DTS is used if the PTS is unknown.
func ToChunk(pkt *astiav.Packet, timeBase astiav.Rational) types.Chunk {
	pts := avconv.Duration(pkt.Pts(), timeBase)
	if pts == avconv.NoDuration {
		pts = avconv.Duration(pkt.Dts(), timeBase)
	}
	var duration time.Duration
	if pkt.Duration() > 0 {
		duration = avconv.Duration(pkt.Duration(), timeBase)
	}
	data := pkt.Data()
	return types.Chunk{
		Data:     append(make([]byte, 0, len(data)), data...),
		PTS:      pts,
		Duration: duration,
		IsKey:    pkt.Flags().Has(astiav.PacketFlagKey),
	}
}

// FromChunk fills pkt (taken from Pool) with a copy of the chunk.
func FromChunk(pkt *astiav.Packet, chunk types.Chunk, timeBase astiav.Rational) error {
	if err := pkt.FromData(chunk.Data); err != nil {
		return err
	}
	pts := avconv.FromDuration(chunk.PTS, timeBase)
	pkt.SetPts(pts)
	pkt.SetDts(pts)
	if chunk.Duration > 0 {
		pkt.SetDuration(avconv.FromDuration(chunk.Duration, timeBase))
	}
	if chunk.IsKey {
		pkt.SetFlags(pkt.Flags().Add(astiav.PacketFlagKey))
	}
	return nil
}
