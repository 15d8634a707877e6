// Package extradata inspects the out-of-band codec configuration a source
// reports with the decoder config.
package extradata

import (
	"encoding/binary"
	"fmt"
)

// Describe returns a one-line human readable summary of the extradata.
func Describe(b []byte) string {
	switch {
	case len(b) == 0:
		return "<empty>"
	case IsAnnexB(b):
		return fmt.Sprintf("annexb(%d NALUs)", len(SplitAnnexB(b)))
	}
	if avcc, err := ParseH264AVCC(b); err == nil {
		return avcc.String()
	}
	return fmt.Sprintf("unknown(%d bytes)", len(b))
}

// H264AVCC is an AVCDecoderConfigurationRecord (ISO/IEC 14496-15).
type H264AVCC struct {
	Profile       uint8
	Compatibility uint8
	Level         uint8
	NALLengthSize int
	SPS           [][]byte
	PPS           [][]byte
}

func ParseH264AVCC(b []byte) (*H264AVCC, error) {
	if len(b) < 7 {
		return nil, fmt.Errorf("data too short (%d bytes)", len(b))
	}
	if b[0] != 1 {
		return nil, fmt.Errorf("unsupported configurationVersion (%d)", b[0])
	}
	if b[4]&0xFC != 0xFC {
		return nil, fmt.Errorf("invalid reserved bits in byte 4 (0x%02X)", b[4])
	}

	cfg := &H264AVCC{
		Profile:       b[1],
		Compatibility: b[2],
		Level:         b[3],
		NALLengthSize: int(b[4]&0x03) + 1,
	}

	var err error
	rest := b[6:]
	cfg.SPS, rest, err = readParameterSets(rest, int(b[5]&0x1F))
	if err != nil {
		return nil, fmt.Errorf("unable to read SPS: %w", err)
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("no PPS count")
	}
	cfg.PPS, _, err = readParameterSets(rest[1:], int(rest[0]))
	if err != nil {
		return nil, fmt.Errorf("unable to read PPS: %w", err)
	}
	return cfg, nil
}

// readParameterSets reads count units prefixed with a 16-bit length.
func readParameterSets(b []byte, count int) ([][]byte, []byte, error) {
	var result [][]byte
	for idx := 0; idx < count; idx++ {
		if len(b) < 2 {
			return nil, nil, fmt.Errorf("unit #%d: no length", idx)
		}
		size := int(binary.BigEndian.Uint16(b))
		b = b[2:]
		if size > len(b) {
			return nil, nil, fmt.Errorf("unit #%d: length %d exceeds the remaining %d bytes", idx, size, len(b))
		}
		result = append(result, append([]byte(nil), b[:size]...))
		b = b[size:]
	}
	return result, b, nil
}

func (c *H264AVCC) String() string {
	return fmt.Sprintf(
		"avcC(profile:0x%02X, level:0x%02X, nal_length_size:%d, sps:%d, pps:%d)",
		c.Profile, c.Level, c.NALLengthSize, len(c.SPS), len(c.PPS),
	)
}
