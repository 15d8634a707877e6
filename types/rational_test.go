package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRationalFromString(t *testing.T) {
	tests := []struct {
		input          string
		expectedNum    int
		expectedDen    int
		expectingError bool
	}{
		{"30", 30, 1, false},
		{"30/1", 30, 1, false},
		{"30000/1001", 30000, 1001, false}, // NTSC
		{"~23.976", 24000, 1001, false},    // NTSC
		{"~29.97", 30000, 1001, false},     // NTSC
		{"~25", 25, 1, false},
		{"~60", 60, 1, false},
		{"0.5", 1, 2, false},
		{"0/1", 0, 1, false},
		{"1/0", 0, 0, true},
		{"invalid", 0, 0, true},
		{"10/invalid", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, test := range tests {
		rational, err := RationalFromString(test.input)
		if test.expectingError {
			if err == nil {
				t.Errorf("Expected error for input %q, but got none", test.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for input %q: %v", test.input, err)
			continue
		}
		if rational.Num != test.expectedNum || rational.Den != test.expectedDen {
			t.Errorf("For input %q, expected (%d/%d), but got (%d/%d)", test.input, test.expectedNum, test.expectedDen, rational.Num, rational.Den)
		}
	}
}

func TestRationalFrameDuration(t *testing.T) {
	require.Equal(t, 40*time.Millisecond, Rational{Num: 25, Den: 1}.FrameDuration())
	require.Equal(t, 33333333*time.Nanosecond, Rational{Num: 30, Den: 1}.FrameDuration())
	require.Equal(t, 33366666*time.Nanosecond, Rational{Num: 30000, Den: 1001}.FrameDuration())
	require.Zero(t, Rational{}.FrameDuration())
	require.False(t, Rational{Num: 30}.IsValid())
}

func TestRationalYAML(t *testing.T) {
	var v struct {
		Framerate Rational `yaml:"framerate"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("framerate: 30000/1001\n"), &v))
	require.Equal(t, Rational{Num: 30000, Den: 1001}, v.Framerate)

	b, err := yaml.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, "framerate: 30000/1001\n", string(b))
}
