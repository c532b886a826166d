package matroska

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestActivateAACLowComplexity(t *testing.T) {
	track := &Track{
		CodecID: "A_AAC/MPEG4/LC",
		Audio:   TrackAudio{Channels: 2, Rate: 44100, OriginalRate: 44100},
	}

	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecMP4A {
		t.Errorf("Expected codec mp4a, got %q", track.Codec)
	}
	if !bytes.Equal(track.Extra, []byte{0x12, 0x10}) {
		t.Errorf("Expected config [0x12 0x10], got % X", track.Extra)
	}
}

func TestActivateAACWithSBR(t *testing.T) {
	track := &Track{
		CodecID: "A_AAC/MPEG4/LC/SBR",
		Audio:   TrackAudio{Channels: 2, Rate: 44100, OriginalRate: 22050},
	}

	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	expected := []byte{0x13, 0x90, 0x56, 0xE5, 0xA0}
	if !bytes.Equal(track.Extra, expected) {
		t.Errorf("Expected config % X, got % X", expected, track.Extra)
	}
}

func TestActivateVfW(t *testing.T) {
	private := make([]byte, bitmapInfoHeaderSize+2)
	binary.LittleEndian.PutUint32(private[0:4], uint32(len(private)))
	binary.LittleEndian.PutUint32(private[4:8], 640)
	binary.LittleEndian.PutUint32(private[8:12], 480)
	copy(private[16:20], "XVID")
	private[bitmapInfoHeaderSize] = 0xAA
	private[bitmapInfoHeaderSize+1] = 0xBB

	track := &Track{CodecID: "V_MS/VFW/FOURCC", CodecPrivate: private}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != "XVID" {
		t.Errorf("Expected codec XVID, got %q", track.Codec)
	}
	if track.Video.PixelWidth != 640 || track.Video.PixelHeight != 480 {
		t.Errorf("Expected 640x480, got %dx%d", track.Video.PixelWidth, track.Video.PixelHeight)
	}
	if !bytes.Equal(track.Extra, []byte{0xAA, 0xBB}) {
		t.Errorf("Expected extradata [AA BB], got % X", track.Extra)
	}
	if !track.DTSOnly {
		t.Error("Expected DTSOnly to be set")
	}
}

func TestActivateVfWTruncated(t *testing.T) {
	track := &Track{CodecID: "V_MS/VFW/FOURCC", CodecPrivate: []byte{0x01, 0x02}}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecUndefined {
		t.Errorf("Expected undf for truncated header, got %q", track.Codec)
	}
}

func TestActivateACM(t *testing.T) {
	private := make([]byte, waveFormatEXSize)
	binary.LittleEndian.PutUint16(private[0:2], 0x2000)
	binary.LittleEndian.PutUint16(private[2:4], 2)
	binary.LittleEndian.PutUint32(private[4:8], 48000)
	binary.LittleEndian.PutUint32(private[8:12], 24000)
	binary.LittleEndian.PutUint16(private[12:14], 4)
	binary.LittleEndian.PutUint16(private[14:16], 16)

	track := &Track{CodecID: "A_MS/ACM", CodecPrivate: private}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecA52 {
		t.Errorf("Expected a52, got %q", track.Codec)
	}
	if track.Audio.Channels != 2 || track.Audio.Rate != 48000 {
		t.Errorf("Unexpected audio params: %+v", track.Audio)
	}
	if track.Audio.Bitrate != 192000 {
		t.Errorf("Expected bitrate 192000, got %d", track.Audio.Bitrate)
	}
	if track.Audio.BlockAlign != 4 || track.Audio.BitsPerSample != 16 {
		t.Errorf("Unexpected block align/bits: %+v", track.Audio)
	}
}

func TestActivateACMUnknownTag(t *testing.T) {
	private := make([]byte, waveFormatEXSize)
	binary.LittleEndian.PutUint16(private[0:2], 0x1234)

	track := &Track{CodecID: "A_MS/ACM", CodecPrivate: private}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecUndefined {
		t.Errorf("Expected undf for unknown tag, got %q", track.Codec)
	}
}

func TestActivatePCM(t *testing.T) {
	tests := []struct {
		name     string
		codecID  string
		expected string
	}{
		{name: "little endian", codecID: "A_PCM/INT/LIT", expected: CodecPCMRaw},
		{name: "big endian", codecID: "A_PCM/INT/BIG", expected: CodecPCMBig},
		{name: "float", codecID: "A_PCM/FLOAT/IEEE", expected: CodecPCMRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := &Track{
				CodecID: tt.codecID,
				Audio:   TrackAudio{Channels: 2, BitsPerSample: 16},
			}
			if !activateCodec(track) {
				t.Fatal("Expected track to activate")
			}
			if track.Codec != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, track.Codec)
			}
			if track.Audio.BlockAlign != 4 {
				t.Errorf("Expected block align 4, got %d", track.Audio.BlockAlign)
			}
		})
	}
}

func TestActivateTTASynthesized(t *testing.T) {
	track := &Track{
		CodecID: "A_TTA1",
		Audio:   TrackAudio{Channels: 2, Rate: 44100, BitsPerSample: 16},
	}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecTTA {
		t.Errorf("Expected TTA1, got %q", track.Codec)
	}
	if len(track.Extra) != 30 {
		t.Fatalf("Expected 30-byte header, got %d", len(track.Extra))
	}
	if string(track.Extra[0:4]) != "TTA1" {
		t.Errorf("Expected TTA1 magic, got %q", track.Extra[0:4])
	}
	if binary.LittleEndian.Uint16(track.Extra[6:8]) != 2 {
		t.Errorf("Expected 2 channels, got %d", binary.LittleEndian.Uint16(track.Extra[6:8]))
	}
	if binary.LittleEndian.Uint32(track.Extra[10:14]) != 44100 {
		t.Errorf("Expected rate 44100, got %d", binary.LittleEndian.Uint32(track.Extra[10:14]))
	}
	if binary.LittleEndian.Uint32(track.Extra[14:18]) != 0xFFFFFFFF {
		t.Error("Expected unknown data length marker")
	}
}

func TestActivateTheora(t *testing.T) {
	track := &Track{CodecID: "V_THEORA", CodecPrivate: []byte{0x80, 't', 'h'}}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecTheora {
		t.Errorf("Expected theo, got %q", track.Codec)
	}
	if !track.PTSOnly {
		t.Error("Expected PTSOnly to be set")
	}
	if !bytes.Equal(track.Extra, track.CodecPrivate) {
		t.Errorf("Expected extradata copy of private data, got % X", track.Extra)
	}
}

func TestActivateTextSubtitles(t *testing.T) {
	track := &Track{CodecID: "S_TEXT/UTF8"}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecSUBT {
		t.Errorf("Expected subt, got %q", track.Codec)
	}
	if track.Subs.Encoding != "UTF-8" {
		t.Errorf("Expected UTF-8 encoding, got %q", track.Subs.Encoding)
	}
}

func TestActivateButtonTrackRejected(t *testing.T) {
	track := &Track{CodecID: "B_VOBBTN"}
	if activateCodec(track) {
		t.Error("Expected button track to be rejected")
	}
}

func TestActivateUnknownCodec(t *testing.T) {
	track := &Track{CodecID: "V_SOMETHING_NEW"}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecUndefined {
		t.Errorf("Expected undf, got %q", track.Codec)
	}
}

func TestParseVobSubPrivate(t *testing.T) {
	text := "size: 720x576\npalette: 000000, 111111, 222222, 333333, 444444, 555555, " +
		"666666, 777777, 888888, 999999, aaaaaa, bbbbbb, cccccc, dddddd, eeeeee, ffffff\n"

	track := &Track{}
	parseVobSubPrivate(track, text)

	if track.Subs.OriginalFrameWidth != 720 || track.Subs.OriginalFrameHeight != 576 {
		t.Errorf("Expected 720x576, got %dx%d", track.Subs.OriginalFrameWidth, track.Subs.OriginalFrameHeight)
	}
	if track.Subs.Palette[0] != 0xBEEF {
		t.Errorf("Expected palette marker 0xBEEF, got 0x%X", track.Subs.Palette[0])
	}
	if track.Subs.Palette[1] != 0x000000 || track.Subs.Palette[16] != 0xFFFFFF {
		t.Errorf("Unexpected palette entries: first=0x%X last=0x%X", track.Subs.Palette[1], track.Subs.Palette[16])
	}
}

func TestParseVobSubPrivateBadPalette(t *testing.T) {
	track := &Track{}
	parseVobSubPrivate(track, "size: 720x576\npalette: 000000, 111111\n")
	if track.Subs.Palette[0] == 0xBEEF {
		t.Error("Expected palette marker to stay unset for a short palette")
	}
	if track.Subs.OriginalFrameWidth != 720 {
		t.Errorf("Expected frame size to parse regardless, got width %d", track.Subs.OriginalFrameWidth)
	}
}

func TestActivateRealAudio144(t *testing.T) {
	track := &Track{CodecID: "A_REAL/14_4"}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecRA144 {
		t.Errorf("Expected 14_4, got %q", track.Codec)
	}
	if track.Audio.Channels != 1 || track.Audio.Rate != 8000 || track.Audio.BlockAlign != 0x14 {
		t.Errorf("Unexpected audio params: %+v", track.Audio)
	}
}

func TestActivateRealAudioCook(t *testing.T) {
	private := make([]byte, raExtraOffset+4)
	copy(private[0:4], ".ra\xfd")
	binary.BigEndian.PutUint16(private[raVersionOffset:], 4)
	binary.BigEndian.PutUint16(private[raSubPacketHOffset:], 2)
	binary.BigEndian.PutUint16(private[raFrameSizeOffset:], 640)
	binary.BigEndian.PutUint16(private[raSubPacketSizeOffset:], 320)
	binary.BigEndian.PutUint16(private[raV4ParamsOffset:], 44100)
	binary.BigEndian.PutUint16(private[raV4ParamsOffset+4:], 16)
	binary.BigEndian.PutUint16(private[raV4ParamsOffset+6:], 2)
	copy(private[raExtraOffset:], []byte{0x01, 0x02, 0x03, 0x04})

	track := &Track{CodecID: "A_REAL/COOK", CodecPrivate: private}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecCook {
		t.Errorf("Expected cook, got %q", track.Codec)
	}
	if track.Audio.BlockAlign != 320 {
		t.Errorf("Expected block align 320, got %d", track.Audio.BlockAlign)
	}
	if track.Audio.Rate != 44100 || track.Audio.Channels != 2 || track.Audio.BitsPerSample != 16 {
		t.Errorf("Unexpected audio params: %+v", track.Audio)
	}
	if track.Cook == nil {
		t.Fatal("Expected interleaver state")
	}
	if len(track.Cook.SubPackets) != 4 {
		t.Errorf("Expected 4 subpacket slots, got %d", len(track.Cook.SubPackets))
	}
	if !bytes.Equal(track.Extra, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("Expected extradata [01 02 03 04], got % X", track.Extra)
	}
}

func TestActivateRealAudioBadHeader(t *testing.T) {
	private := make([]byte, 80)
	copy(private[0:4], "nope")
	track := &Track{CodecID: "A_REAL/COOK", CodecPrivate: private}
	if !activateCodec(track) {
		t.Fatal("Expected track to activate")
	}
	if track.Codec != CodecUndefined {
		t.Errorf("Expected undf for bad header, got %q", track.Codec)
	}
}

// captureOutput records descriptor registrations and clock events for
// activation and seek tests.
type captureOutput struct {
	descriptors  []*ESDescriptor
	defaults     int
	pcrs         []int64
	displayTimes []int64
}

type captureHandle struct {
	desc *ESDescriptor
}

func (c *captureOutput) Add(desc *ESDescriptor) ESHandle {
	c.descriptors = append(c.descriptors, desc)
	return &captureHandle{desc: desc}
}

func (c *captureOutput) Del(ESHandle)          {}
func (c *captureOutput) Send(ESHandle, *Frame) {}
func (c *captureOutput) SetESDefault(ESHandle) { c.defaults++ }
func (c *captureOutput) SetPCR(pcrUS int64)    { c.pcrs = append(c.pcrs, pcrUS) }
func (c *captureOutput) SetNextDisplayTime(tUS int64) {
	c.displayTimes = append(c.displayTimes, tUS)
}

func TestActivateTracksDefaultPromotion(t *testing.T) {
	segment := &Segment{
		tracks: []*Track{
			{Number: 1, Category: CategoryVideo, Enabled: true, CodecID: "V_MPEG4/ISO/AVC"},
			{Number: 2, Category: CategoryAudio, Enabled: true, CodecID: "A_AC3", Audio: TrackAudio{Channels: 2, Rate: 48000}},
		},
	}

	out := &captureOutput{}
	if err := segment.activateTracks(out); err != nil {
		t.Fatalf("activateTracks failed: %v", err)
	}

	if !segment.tracks[0].Default || !segment.tracks[1].Default {
		t.Error("Expected both tracks to be promoted to default")
	}
	if len(out.descriptors) != 2 {
		t.Fatalf("Expected 2 registered streams, got %d", len(out.descriptors))
	}
	if out.defaults != 2 {
		t.Errorf("Expected 2 default notifications, got %d", out.defaults)
	}
}

func TestActivateTracksPriority(t *testing.T) {
	segment := &Segment{
		tracks: []*Track{
			{Number: 1, Category: CategoryVideo, Enabled: true, Default: true, CodecID: "V_MPEG4/ISO/AVC"},
			{Number: 2, Category: CategoryAudio, Enabled: true, Default: true, CodecID: "A_AC3"},
			{Number: 3, Category: CategoryAudio, Enabled: true, Forced: true, CodecID: "A_AC3"},
			{Number: 4, Category: CategorySubtitle, Enabled: true, CodecID: "S_TEXT/UTF8"},
		},
	}

	if err := segment.activateTracks(&captureOutput{}); err != nil {
		t.Fatalf("activateTracks failed: %v", err)
	}

	// Video backs off one step so alternate angles never fight for an ES.
	if segment.tracks[0].Priority != 0 {
		t.Errorf("Expected video priority 0, got %d", segment.tracks[0].Priority)
	}
	if segment.tracks[1].Priority != 1 {
		t.Errorf("Expected default audio priority 1, got %d", segment.tracks[1].Priority)
	}
	if segment.tracks[2].Priority != 2 {
		t.Errorf("Expected forced audio priority 2, got %d", segment.tracks[2].Priority)
	}
	if segment.tracks[3].Priority != 0 {
		t.Errorf("Expected plain subtitle priority 0, got %d", segment.tracks[3].Priority)
	}
}

func TestActivateTracksSkipsInvalid(t *testing.T) {
	segment := &Segment{
		tracks: []*Track{
			{Number: 1, Category: CategoryUnknown, Enabled: true, CodecID: "A_AC3"},
			{Number: 2, Category: CategoryAudio, Enabled: true, CodecID: ""},
			{Number: 3, Category: CategoryAudio, Enabled: true, CodecID: "A_AC3"},
		},
	}

	out := &captureOutput{}
	if err := segment.activateTracks(out); err != nil {
		t.Fatalf("activateTracks failed: %v", err)
	}
	if len(out.descriptors) != 1 {
		t.Fatalf("Expected 1 registered stream, got %d", len(out.descriptors))
	}
	if out.descriptors[0].TrackNumber != 3 {
		t.Errorf("Expected track 3 to register, got %d", out.descriptors[0].TrackNumber)
	}
}
