package sink

import (
	"bytes"
	"testing"
)

func TestAnnexBToAVC1StripsStartCodesAndLengthPrefixes(t *testing.T) {
	t.Parallel()

	nalu1 := append([]byte{0, 0, 0, 1}, []byte{0x67, 0xAA, 0xBB}...)
	nalu2 := append([]byte{0, 0, 1}, []byte{0x68, 0xCC}...)

	out := annexBToAVC1([][]byte{nalu1, nalu2})

	want := []byte{
		0, 0, 0, 3, 0x67, 0xAA, 0xBB,
		0, 0, 0, 2, 0x68, 0xCC,
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("annexBToAVC1() = %x, want %x", out, want)
	}
}

func TestBuildAVCDecoderConfigShape(t *testing.T) {
	t.Parallel()

	cfg := buildAVCDecoderConfig(bootSPS, bootPPS)
	if len(cfg) == 0 {
		t.Fatal("buildAVCDecoderConfig returned empty config")
	}
	if cfg[0] != 1 {
		t.Errorf("configurationVersion = %d, want 1", cfg[0])
	}
	if cfg[1] != bootSPS[1] {
		t.Errorf("AVCProfileIndication = %d, want %d", cfg[1], bootSPS[1])
	}
}

func TestBuildAVCDecoderConfigRejectsShortInput(t *testing.T) {
	t.Parallel()

	if cfg := buildAVCDecoderConfig([]byte{1, 2}, bootPPS); cfg != nil {
		t.Errorf("buildAVCDecoderConfig with short SPS = %v, want nil", cfg)
	}
	if cfg := buildAVCDecoderConfig(bootSPS, nil); cfg != nil {
		t.Errorf("buildAVCDecoderConfig with empty PPS = %v, want nil", cfg)
	}
}

func TestBootDecoderConfigAndKeyframe(t *testing.T) {
	t.Parallel()

	cfg := BootDecoderConfig()
	if len(cfg) == 0 {
		t.Fatal("BootDecoderConfig() returned empty slice")
	}

	wire := BootKeyframeWireBytes([]byte{0x65, 0x01, 0x02})
	if len(wire) == 0 {
		t.Fatal("BootKeyframeWireBytes() returned empty slice")
	}
}
