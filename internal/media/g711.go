package media

// G.711 codec conversion between 8-bit companded samples and 16-bit linear
// PCM. Both u-law (PCMU) and a-law (PCMA) variants are supported; recordings
// are stored as u-law, so a-law input is transcoded through linear PCM.

const (
	ulawBias = 0x84
	ulawClip = 32635

	// SilencePCMU and SilencePCMA are the companded encodings of a zero
	// sample, used for comfort frames when there is no audio to send.
	SilencePCMU byte = 0xFF
	SilencePCMA byte = 0xD5
)

// EncodeULaw compands a 16-bit linear PCM sample to G.711 u-law.
func EncodeULaw(pcm int16) byte {
	s := int32(pcm)
	var sign byte
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exp := byte(7)
	for mask := int32(0x4000); s&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := byte(s>>(exp+3)) & 0x0F
	return ^(sign | exp<<4 | mant)
}

// DecodeULaw expands a G.711 u-law sample to 16-bit linear PCM.
func DecodeULaw(in byte) int16 {
	in = ^in
	exp := (in >> 4) & 0x07
	mant := int32(in & 0x0F)
	s := ((mant << 3) + ulawBias) << exp
	s -= ulawBias
	if in&0x80 != 0 {
		return int16(-s)
	}
	return int16(s)
}

// DecodeALaw expands a G.711 a-law sample to 16-bit linear PCM.
// In a-law a set sign bit marks a positive sample.
func DecodeALaw(in byte) int16 {
	in ^= 0x55
	seg := (in >> 4) & 0x07
	s := int32(in&0x0F) << 4
	if seg == 0 {
		s += 8
	} else {
		s += 0x108
		s <<= seg - 1
	}
	if in&0x80 != 0 {
		return int16(s)
	}
	return int16(-s)
}

// TranscodeToULaw converts a companded G.711 payload to u-law. PCMU input
// passes through unchanged; PCMA is transcoded sample by sample. The result
// is appended to dst. Unsupported payload types return dst unchanged.
func TranscodeToULaw(dst, payload []byte, payloadType int) []byte {
	switch payloadType {
	case PayloadPCMU:
		return append(dst, payload...)
	case PayloadPCMA:
		for _, b := range payload {
			dst = append(dst, EncodeULaw(DecodeALaw(b)))
		}
		return dst
	default:
		return dst
	}
}
