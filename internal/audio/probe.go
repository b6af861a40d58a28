package audio

import "encoding/binary"

// FrameInfo describes the first MPEG audio frame found in a stream.
type FrameInfo struct {
	Bitrate    int // bits per second
	SampleRate int
	Offset     int // byte offset of the frame header
}

// MPEG audio version/layer/bitrate lookup tables (ISO 11172-3 / 13818-3).
var bitrateTable = [2][3][16]int{
	// MPEG-1
	{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	},
	// MPEG-2 / MPEG-2.5
	{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	},
}

var sampleRateTable = [3][4]int{
	{44100, 48000, 32000, 0}, // MPEG-1
	{22050, 24000, 16000, 0}, // MPEG-2
	{11025, 12000, 8000, 0},  // MPEG-2.5
}

// ProbeMPEG scans the head of an MP3 stream for the first valid frame header,
// skipping an ID3v2 tag when one is present. ok is false when the head is too
// short or holds no frame.
func ProbeMPEG(head []byte) (FrameInfo, bool) {
	start := 0
	if len(head) >= 10 && string(head[:3]) == "ID3" {
		// Synchsafe integer (4 bytes, 7 bits each)
		tagSize := int(head[6])<<21 | int(head[7])<<14 | int(head[8])<<7 | int(head[9])
		start = 10 + tagSize
	}

	for i := start; i+4 <= len(head); i++ {
		if head[i] != 0xFF || head[i+1]&0xE0 != 0xE0 {
			continue
		}
		hdr := binary.BigEndian.Uint32(head[i : i+4])

		versionBits := (hdr >> 19) & 0x03
		layerBits := (hdr >> 17) & 0x03
		bitrateIdx := (hdr >> 12) & 0x0F
		sampleIdx := (hdr >> 10) & 0x03
		if bitrateIdx == 0 || bitrateIdx == 15 || sampleIdx == 3 || layerBits == 0 {
			continue
		}

		// version bits: 0=2.5, 1=reserved, 2=2, 3=1
		var versionIdx, sampleVersion int
		switch versionBits {
		case 3:
			versionIdx, sampleVersion = 0, 0
		case 2:
			versionIdx, sampleVersion = 1, 1
		case 0:
			versionIdx, sampleVersion = 1, 2
		default:
			continue
		}

		// layer bits: 1=III, 2=II, 3=I
		layerIdx := 3 - int(layerBits)

		bitrate := bitrateTable[versionIdx][layerIdx][bitrateIdx] * 1000
		sampleRate := sampleRateTable[sampleVersion][sampleIdx]
		if bitrate == 0 || sampleRate == 0 {
			continue
		}
		return FrameInfo{Bitrate: bitrate, SampleRate: sampleRate, Offset: i}, true
	}
	return FrameInfo{}, false
}

// EstimateMPEGDuration estimates the duration of a whole MP3 file from its
// size and the bitrate of its first frame.
func EstimateMPEGDuration(data []byte) (float64, bool) {
	head := data
	if len(head) > 64*1024 {
		head = head[:64*1024]
	}
	fi, ok := ProbeMPEG(head)
	if !ok {
		return 0, false
	}
	audioSize := int64(len(data) - fi.Offset)
	return float64(audioSize*8) / float64(fi.Bitrate), true
}
