package extradata

// IsAnnexB returns true if b starts with a start code.
func IsAnnexB(b []byte) bool {
	return FindStartCode(b, 0) == 0
}

// SplitAnnexB returns copies of the NAL units of an Annex-B byte stream.
func SplitAnnexB(b []byte) [][]byte {
	var nalus [][]byte
	start := FindStartCode(b, 0)
	for start >= 0 {
		payload := start + startCodeLen(b, start)
		next := FindStartCode(b, payload)
		end := next
		if end < 0 {
			end = len(b)
		}
		if end > payload {
			nalus = append(nalus, append([]byte(nil), b[payload:end]...))
		}
		start = next
	}
	return nalus
}

func startCodeLen(b []byte, at int) int {
	if at+3 < len(b) && b[at+2] == 0 {
		return 4
	}
	return 3
}

// FindStartCode returns the position of the first 00 00 01 or
// 00 00 00 01 at or after start, or -1.
func FindStartCode(b []byte, start int) int {
	for i := start; i+3 <= len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 {
			continue
		}
		if b[i+2] == 1 {
			return i
		}
		if i+4 <= len(b) && b[i+2] == 0 && b[i+3] == 1 {
			return i
		}
	}
	return -1
}
