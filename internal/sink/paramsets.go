// Package sink implements the Output Sink Gate (spec §4.7): wall-clock
// pacing, per-stream monotonic PTS/DTS correction, deterministic silence
// and black-frame boot liveness, and the two `Sink` variants (spec §9
// Polymorphism: MpegTSOutputSink, UdsSink) that hand finished packets to
// the external muxer/transport.
package sink

import "encoding/binary"

// annexBToAVC1 converts Annex B NALUs (start-code prefixed) to AVC1 format
// (4-byte big-endian length prefixed), adapted from
// internal/moq/format.go's AnnexBToAVC1 for the boot-liveness fallback
// frame's wire encoding.
func annexBToAVC1(nalus [][]byte) []byte {
	var total int
	for _, nalu := range nalus {
		raw := stripStartCode(nalu)
		total += 4 + len(raw)
	}

	out := make([]byte, 0, total)
	for _, nalu := range nalus {
		raw := stripStartCode(nalu)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))
		out = append(out, lenBuf[:]...)
		out = append(out, raw...)
	}
	return out
}

func stripStartCode(nalu []byte) []byte {
	if len(nalu) >= 4 && nalu[0] == 0 && nalu[1] == 0 && nalu[2] == 0 && nalu[3] == 1 {
		return nalu[4:]
	}
	if len(nalu) >= 3 && nalu[0] == 0 && nalu[1] == 0 && nalu[2] == 1 {
		return nalu[3:]
	}
	return nalu
}

// buildAVCDecoderConfig builds an AVCDecoderConfigurationRecord
// (ISO 14496-15 §5.2.4.1.1) from raw SPS and PPS NAL data (without start
// codes), adapted from internal/moq/format.go's BuildAVCDecoderConfig.
// The HEVC counterpart was dropped along with H.265 decode support.
func buildAVCDecoderConfig(sps, pps []byte) []byte {
	if len(sps) < 4 || len(pps) == 0 {
		return nil
	}

	buf := make([]byte, 0, 11+len(sps)+len(pps))
	buf = append(buf, 1)      // configurationVersion
	buf = append(buf, sps[1]) // AVCProfileIndication
	buf = append(buf, sps[2]) // profile_compatibility
	buf = append(buf, sps[3]) // AVCLevelIndication
	buf = append(buf, 0xFF)   // lengthSizeMinusOne = 3 | reserved 0xFC
	buf = append(buf, 0xE1)   // numOfSequenceParameterSets = 1 | reserved 0xE0

	buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
	buf = append(buf, sps...)

	buf = append(buf, 1) // numOfPictureParameterSets
	buf = append(buf, byte(len(pps)>>8), byte(len(pps)))
	buf = append(buf, pps...)

	return buf
}

// bootSPS/bootPPS are a fixed, minimal H.264 baseline-profile parameter
// set pair (NAL header included) used only to build the boot-liveness
// fallback frame's decoder configuration record — never a parsed live
// SPS/PPS, since decode internals are out of scope (spec §1).
var (
	bootSPS = []byte{0x67, 0x42, 0x00, 0x1E, 0x8D, 0x68, 0x28, 0x02, 0x27, 0xE5, 0x40}
	bootPPS = []byte{0x68, 0xCE, 0x3C, 0x80}
)

// BootDecoderConfig returns the AVCDecoderConfigurationRecord for the
// boot-liveness fallback frame (spec §4.7: "black frame with
// keyframe+parameter-set headers").
func BootDecoderConfig() []byte {
	return buildAVCDecoderConfig(bootSPS, bootPPS)
}

// BootKeyframeWireBytes returns the boot-liveness black keyframe (SPS,
// PPS, then idrSlice) in AVC1 length-prefixed wire format.
func BootKeyframeWireBytes(idrSlice []byte) []byte {
	nalus := [][]byte{
		append([]byte{0, 0, 0, 1}, bootSPS...),
		append([]byte{0, 0, 0, 1}, bootPPS...),
		append([]byte{0, 0, 0, 1}, idrSlice...),
	}
	return annexBToAVC1(nalus)
}

// bootIDRSlice is a minimal placeholder IDR slice NAL paired with
// bootSPS/bootPPS to form a self-contained, all-black keyframe access
// unit. It carries no real slice payload, since decode internals are out
// of scope (spec §1) — what matters for P10 is that a decoder attaching
// mid-boot has parameter sets and a keyframe to lock onto.
var bootIDRSlice = []byte{0x65, 0x88, 0x84, 0x00}

// BootBlackKeyframe returns the raw SPS/PPS, the AVCDecoderConfigurationRecord,
// and the AVC1-wire-formatted keyframe NALU to attach to the black
// boot-liveness fallback frame (spec §4.7: "black frame with
// keyframe+parameter-set headers"), so a decoder attaching within the
// boot deadline has both the out-of-band decoder config and an in-band
// keyframe to lock onto rather than an empty payload.
func BootBlackKeyframe() (sps, pps, decoderConfig, keyframeWireBytes []byte) {
	return bootSPS, bootPPS, BootDecoderConfig(), BootKeyframeWireBytes(bootIDRSlice)
}
