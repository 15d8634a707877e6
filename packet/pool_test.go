package packet

import (
	"testing"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/videoinput/types"
)

func TestChunkRoundTrip(t *testing.T) {
	timeBase := astiav.NewRational(1, 1000)
	pkt := Pool.Get()
	defer Pool.Put(pkt)

	orig := types.Chunk{
		Data:     []byte{0, 0, 0, 1, 0x65, 0x88},
		PTS:      1500 * time.Millisecond,
		Duration: 40 * time.Millisecond,
		IsKey:    true,
	}
	require.NoError(t, FromChunk(pkt, orig, timeBase))
	require.Equal(t, int64(1500), pkt.Pts())

	chunk := ToChunk(pkt, timeBase)
	require.Equal(t, orig, chunk)

	chunk.Data[0] = 0xff
	require.Equal(t, byte(0), pkt.Data()[0], "the chunk must own a copy of the payload")
}
