package capture

import "encoding/binary"

// H.264 NAL unit types.
const (
	nalTypeSlice = 1
	nalTypeIDR   = 5
	nalTypeSEI   = 6
	nalTypeSPS   = 7
	nalTypePPS   = 8
	nalTypeAUD   = 9
)

// parseAnnexBNALUnits splits an Annex-B stream (0x000001 or 0x00000001
// start codes) into NAL units. The returned slices alias data.
func parseAnnexBNALUnits(data []byte) [][]byte {
	var nalUnits [][]byte
	start := -1

	for i := 0; i+2 < len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 {
			continue
		}
		codeLen := 0
		switch {
		case data[i+2] == 1:
			codeLen = 3
		case i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1:
			codeLen = 4
		default:
			continue
		}
		if start >= 0 && i > start {
			nalUnits = append(nalUnits, data[start:i])
		}
		start = i + codeLen
		i += codeLen - 1
	}

	if start >= 0 && start < len(data) {
		nalUnits = append(nalUnits, data[start:])
	}
	return nalUnits
}

func nalType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

// ExtractParameterSets returns the first SPS and PPS found in an Annex-B
// access unit. The results are copies.
func ExtractParameterSets(annexB []byte) (sps, pps []byte) {
	for _, nalu := range parseAnnexBNALUnits(annexB) {
		switch nalType(nalu) {
		case nalTypeSPS:
			if sps == nil {
				sps = append([]byte(nil), nalu...)
			}
		case nalTypePPS:
			if pps == nil {
				pps = append([]byte(nil), nalu...)
			}
		}
	}
	return sps, pps
}

// IsKeyframeAnnexB reports whether an Annex-B access unit contains an IDR slice.
func IsKeyframeAnnexB(annexB []byte) bool {
	for _, nalu := range parseAnnexBNALUnits(annexB) {
		if nalType(nalu) == nalTypeIDR {
			return true
		}
	}
	return false
}

// AnnexBToAVCC converts an Annex-B access unit to 4-byte length-prefixed NAL
// units. Parameter sets and access unit delimiters are dropped; they travel in
// the AVC sequence header instead.
func AnnexBToAVCC(annexB []byte) []byte {
	nalus := parseAnnexBNALUnits(annexB)
	size := 0
	for _, nalu := range nalus {
		size += 4 + len(nalu)
	}
	out := make([]byte, 0, size)
	for _, nalu := range nalus {
		switch nalType(nalu) {
		case nalTypeSPS, nalTypePPS, nalTypeAUD:
			continue
		}
		out = binary.BigEndian.AppendUint32(out, uint32(len(nalu)))
		out = append(out, nalu...)
	}
	return out
}

// parseAVCCNALUs splits 4-byte length-prefixed NAL units.
func parseAVCCNALUs(data []byte) [][]byte {
	var nalus [][]byte
	for offset := 0; offset+4 <= len(data); {
		length := int(binary.BigEndian.Uint32(data[offset:]))
		offset += 4
		if length <= 0 || offset+length > len(data) {
			break
		}
		nalus = append(nalus, data[offset:offset+length])
		offset += length
	}
	return nalus
}

// ParseAVCDecoderConfigurationRecord returns the first SPS and PPS carried
// in an AVC sequence header body.
func ParseAVCDecoderConfigurationRecord(data []byte) (sps, pps []byte) {
	if len(data) < 8 {
		return nil, nil
	}
	offset := 5
	numSPS := int(data[offset] & 0x1F)
	offset++

	for i := 0; i < numSPS && offset+2 <= len(data); i++ {
		length := int(binary.BigEndian.Uint16(data[offset:]))
		offset += 2
		if offset+length > len(data) {
			return sps, nil
		}
		if sps == nil {
			sps = data[offset : offset+length]
		}
		offset += length
	}

	if offset >= len(data) {
		return sps, nil
	}
	numPPS := int(data[offset])
	offset++
	for i := 0; i < numPPS && offset+2 <= len(data); i++ {
		length := int(binary.BigEndian.Uint16(data[offset:]))
		offset += 2
		if offset+length > len(data) {
			break
		}
		if pps == nil {
			pps = data[offset : offset+length]
		}
		offset += length
	}
	return sps, pps
}
