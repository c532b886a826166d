package matroska

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/luispater/mkvdemux-go/internal/logger"
)

// Normalized codec identifiers handed to the ES output.
const (
	CodecUndefined = "undf"

	CodecMPGV   = "mpgv"
	CodecTheora = "theo"
	CodecRV10   = "RV10"
	CodecRV20   = "RV20"
	CodecRV30   = "RV30"
	CodecRV40   = "RV40"
	CodecDirac  = "drac"
	CodecVP8    = "VP80"
	CodecDIV3   = "DIV3"
	CodecAVC1   = "avc1"
	CodecMP4V   = "mp4v"
	CodecMJPEG  = "MJPG"

	CodecMPGA    = "mpga"
	CodecA52     = "a52 "
	CodecEAC3    = "eac3"
	CodecDTS     = "dts "
	CodecMLP     = "mlp "
	CodecTrueHD  = "trhd"
	CodecFLAC    = "flac"
	CodecVorbis  = "vorb"
	CodecMP4A    = "mp4a"
	CodecWavPack = "wvpk"
	CodecTTA     = "TTA1"
	CodecPCMBig  = "twos"
	CodecPCMRaw  = "araw"
	CodecRA144   = "14_4"
	CodecCook    = "cook"
	CodecATRAC3  = "atrc"
	CodecRA288   = "28_8"
	CodecALaw    = "alaw"
	CodecULaw    = "ulaw"
	CodecFL32    = "fl32"
	CodecWMA1    = "wma1"
	CodecWMA2    = "wma2"
	CodecWMAP    = "wmap"

	CodecKate = "kate"
	CodecSUBT = "subt"
	CodecUSF  = "usf "
	CodecSSA  = "ssa "
	CodecSPU  = "spu "
	CodecBDPG = "bdpg"
)

// bitmapInfoHeaderSize is the fixed part of a BITMAPINFOHEADER.
const bitmapInfoHeaderSize = 40

// waveFormatEXSize is the fixed part of a WAVEFORMATEX.
const waveFormatEXSize = 18

// waveTagCodecs maps WAVEFORMATEX format tags to normalized codecs.
var waveTagCodecs = map[uint16]string{
	0x0001: CodecPCMRaw,
	0x0003: CodecFL32,
	0x0006: CodecALaw,
	0x0007: CodecULaw,
	0x0050: CodecMPGA,
	0x0055: CodecMPGA,
	0x00FF: CodecMP4A,
	0x0160: CodecWMA1,
	0x0161: CodecWMA2,
	0x0162: CodecWMAP,
	0x2000: CodecA52,
	0x2001: CodecDTS,
	0x566F: CodecVorbis,
}

// aacSampleRates is the AudioSpecificConfig sampling-frequency-index table.
var aacSampleRates = [13]uint32{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// activateTracks runs codec dispatch on every track and registers the usable
// ones with the ES output. Tracks without a recognized default in the Video or
// Audio category promote their first track.
func (s *Segment) activateTracks(out ESOutput) error {
	hasDefaultVideo := false
	hasDefaultAudio := false
	for _, track := range s.tracks {
		if !track.Enabled || !(track.Default || track.Forced) {
			continue
		}
		switch track.Category {
		case CategoryVideo:
			hasDefaultVideo = true
		case CategoryAudio:
			hasDefaultAudio = true
		}
	}

	for _, track := range s.tracks {
		if track.CodecID == "" || track.Category == CategoryUnknown {
			logger.Warning(fmt.Sprintf("invalid track %d", track.Number))
			track.ES = nil
			continue
		}

		if !hasDefaultVideo && track.Category == CategoryVideo {
			track.Default = true
			hasDefaultVideo = true
		} else if !hasDefaultAudio && track.Category == CategoryAudio {
			track.Default = true
			hasDefaultAudio = true
		}

		if !activateCodec(track) {
			continue
		}

		switch {
		case !track.Enabled:
			track.Priority = -2
		case track.Forced:
			track.Priority = 2
		case track.Default:
			track.Priority = 1
		default:
			track.Priority = 0
		}
		// Avoid engaging several video ES when alternate angles exist.
		if track.Category == CategoryVideo {
			track.Priority--
		}

		if out == nil {
			continue
		}

		track.ES = out.Add(&ESDescriptor{
			TrackNumber: track.Number,
			Category:    track.Category,
			Codec:       track.Codec,
			Language:    track.Language,
			Priority:    track.Priority,
			Video:       track.Video,
			Audio:       track.Audio,
			Subs:        track.Subs,
			Extra:       track.Extra,
		})

		if track.Default {
			out.SetESDefault(track.ES)
		}
	}

	return nil
}

// activateCodec fills the normalized codec fields of a track from its codec ID
// and private data. The return value reports whether the track should be
// registered with the ES output at all.
func activateCodec(track *Track) bool {
	codecID := track.CodecID
	private := track.CodecPrivate

	switch {
	case codecID == "V_MS/VFW/FOURCC":
		activateVfW(track)
	case codecID == "V_MPEG1" || codecID == "V_MPEG2":
		track.Codec = CodecMPGV
		fillExtra(track, 0)
	case strings.HasPrefix(codecID, "V_THEORA"):
		track.Codec = CodecTheora
		fillExtra(track, 0)
		track.PTSOnly = true
	case strings.HasPrefix(codecID, "V_REAL/RV"):
		activateRealVideo(track)
	case strings.HasPrefix(codecID, "V_DIRAC"):
		track.Codec = CodecDirac
	case strings.HasPrefix(codecID, "V_VP8"):
		track.Codec = CodecVP8
		track.PTSOnly = true
	case codecID == "V_MPEG4/MS/V3":
		track.Codec = CodecDIV3
	case strings.HasPrefix(codecID, "V_MPEG4/ISO"):
		if codecID == "V_MPEG4/ISO/AVC" {
			track.Codec = CodecAVC1
		} else {
			track.Codec = CodecMP4V
		}
		fillExtra(track, 0)
	case codecID == "V_QUICKTIME":
		activateQuickTime(track)
	case codecID == "V_MJPEG":
		track.Codec = CodecMJPEG

	case codecID == "A_MS/ACM":
		activateACM(track)
	case codecID == "A_MPEG/L1" || codecID == "A_MPEG/L2" || codecID == "A_MPEG/L3":
		track.Codec = CodecMPGA
	case codecID == "A_AC3":
		track.Codec = CodecA52
	case codecID == "A_EAC3":
		track.Codec = CodecEAC3
	case codecID == "A_DTS":
		track.Codec = CodecDTS
	case codecID == "A_MLP":
		track.Codec = CodecMLP
	case codecID == "A_TRUEHD":
		track.Codec = CodecTrueHD
	case codecID == "A_FLAC":
		track.Codec = CodecFLAC
		fillExtra(track, 0)
	case codecID == "A_VORBIS":
		track.Codec = CodecVorbis
		fillExtra(track, 0)
	case strings.HasPrefix(codecID, "A_AAC/MPEG2/") || strings.HasPrefix(codecID, "A_AAC/MPEG4/"):
		activateAAC(track)
	case codecID == "A_AAC":
		track.Codec = CodecMP4A
		fillExtra(track, 0)
	case codecID == "A_WAVPACK4":
		track.Codec = CodecWavPack
		fillExtra(track, 0)
	case codecID == "A_TTA1":
		activateTTA(track)
	case codecID == "A_PCM/INT/BIG" || codecID == "A_PCM/INT/LIT" || codecID == "A_PCM/FLOAT/IEEE":
		if codecID == "A_PCM/INT/BIG" {
			track.Codec = CodecPCMBig
		} else {
			track.Codec = CodecPCMRaw
		}
		track.Audio.BlockAlign = (track.Audio.BitsPerSample + 7) / 8 * track.Audio.Channels
	case strings.HasPrefix(codecID, "A_REAL/"):
		activateRealAudio(track)

	case codecID == "S_KATE":
		track.Codec = CodecKate
		track.Subs.Encoding = "UTF-8"
		fillExtra(track, 0)
	case codecID == "S_TEXT/ASCII":
		track.Codec = CodecSUBT
		track.Subs.Encoding = "ASCII"
	case codecID == "S_TEXT/UTF8":
		track.Codec = CodecSUBT
		track.Subs.Encoding = "UTF-8"
	case codecID == "S_TEXT/USF":
		track.Codec = CodecUSF
		track.Subs.Encoding = "UTF-8"
		fillExtra(track, 0)
	case codecID == "S_TEXT/SSA" || codecID == "S_TEXT/ASS" || codecID == "S_SSA" || codecID == "S_ASS":
		track.Codec = CodecSSA
		track.Subs.Encoding = "UTF-8"
		fillExtra(track, 0)
	case codecID == "S_VOBSUB":
		track.Codec = CodecSPU
		if len(private) > 0 {
			parseVobSubPrivate(track, string(private))
		}
	case codecID == "S_HDMV/PGS":
		track.Codec = CodecBDPG

	case codecID == "B_VOBBTN":
		// Navigation stream, never handed to the ES output.
		return false

	default:
		logger.Warning(fmt.Sprintf("unknown codec id `%s'", codecID))
		track.Codec = CodecUndefined
	}

	return true
}

// fillExtra copies the codec-private bytes past offset into the extradata.
func fillExtra(track *Track, offset int) {
	if len(track.CodecPrivate) <= offset {
		return
	}
	track.Extra = append([]byte(nil), track.CodecPrivate[offset:]...)
}

func activateVfW(track *Track) {
	private := track.CodecPrivate
	if len(private) < bitmapInfoHeaderSize {
		logger.Error("missing or invalid BITMAPINFOHEADER")
		track.Codec = CodecUndefined
		track.DTSOnly = true
		return
	}

	track.Video.PixelWidth = uint64(binary.LittleEndian.Uint32(private[4:8]))
	track.Video.PixelHeight = uint64(binary.LittleEndian.Uint32(private[8:12]))
	track.Codec = string(private[16:20])

	biSize := int(binary.LittleEndian.Uint32(private[0:4]))
	extraLen := biSize - bitmapInfoHeaderSize
	if maxLen := len(private) - bitmapInfoHeaderSize; extraLen > maxLen {
		extraLen = maxLen
	}
	if extraLen > 0 {
		track.Extra = append([]byte(nil), private[bitmapInfoHeaderSize:bitmapInfoHeaderSize+extraLen]...)
	}
	track.DTSOnly = true
}

func activateRealVideo(track *Track) {
	switch track.CodecID {
	case "V_REAL/RV10":
		track.Codec = CodecRV10
	case "V_REAL/RV20":
		track.Codec = CodecRV20
	case "V_REAL/RV30":
		track.Codec = CodecRV30
	case "V_REAL/RV40":
		track.Codec = CodecRV40
	default:
		track.Codec = CodecUndefined
	}

	private := track.CodecPrivate
	if len(private) >= 26 &&
		private[4] == 'V' && private[5] == 'I' && private[6] == 'D' && private[7] == 'O' &&
		private[8] == 'R' && private[9] == 'V' &&
		(private[10] == '3' || private[10] == '4') && private[11] == '0' {
		rate := binary.BigEndian.Uint32(private[22:26])
		track.Video.FrameRate = float64(rate) / 65536
	}

	fillExtra(track, 26)
	track.DTSOnly = true
}

// activateQuickTime pulls the FourCC and dimensions out of a video sample
// description carried verbatim in the codec private data.
func activateQuickTime(track *Track) {
	private := track.CodecPrivate
	if len(private) < 8 {
		logger.Error("missing QuickTime sample description")
		track.Codec = CodecUndefined
		return
	}

	track.Codec = string(private[4:8])
	if len(private) >= 36 {
		track.Video.PixelWidth = uint64(binary.BigEndian.Uint16(private[32:34]))
		track.Video.PixelHeight = uint64(binary.BigEndian.Uint16(private[34:36]))
	}
	fillExtra(track, 0)
}

func activateACM(track *Track) {
	private := track.CodecPrivate
	if len(private) < waveFormatEXSize {
		logger.Error("missing or invalid WAVEFORMATEX")
		track.Codec = CodecUndefined
		return
	}

	tag := binary.LittleEndian.Uint16(private[0:2])
	codec, ok := waveTagCodecs[tag]
	if !ok {
		logger.Error(fmt.Sprintf("unrecognized wave format tag 0x%x", tag))
		codec = CodecUndefined
	}
	track.Codec = codec

	track.Audio.Channels = uint64(binary.LittleEndian.Uint16(private[2:4]))
	track.Audio.Rate = float64(binary.LittleEndian.Uint32(private[4:8]))
	track.Audio.Bitrate = uint64(binary.LittleEndian.Uint32(private[8:12])) * 8
	track.Audio.BlockAlign = uint64(binary.LittleEndian.Uint16(private[12:14]))
	track.Audio.BitsPerSample = uint64(binary.LittleEndian.Uint16(private[14:16]))

	cbSize := int(binary.LittleEndian.Uint16(private[16:18]))
	if cbSize > len(private)-waveFormatEXSize {
		cbSize = len(private) - waveFormatEXSize
	}
	if cbSize > 0 {
		track.Extra = append([]byte(nil), private[waveFormatEXSize:waveFormatEXSize+cbSize]...)
	}
}

// activateAAC synthesizes an AudioSpecificConfig from the codec ID variant,
// the original sampling rate and the channel count. The LC/SBR variant gets
// three extra bytes of explicit SBR signaling.
func activateAAC(track *Track) {
	track.Codec = CodecMP4A

	variant := track.CodecID[len("A_AAC/MPEGx/"):]
	profile := 3
	sbr := false
	switch variant {
	case "MAIN":
		profile = 0
	case "LC":
		profile = 1
	case "SSR":
		profile = 2
	case "LC/SBR":
		profile = 1
		sbr = true
	}

	srateIndex := len(aacSampleRates)
	for i, rate := range aacSampleRates {
		if rate == uint32(track.Audio.OriginalRate) {
			srateIndex = i
			break
		}
	}

	size := 2
	if sbr {
		size = 5
	}
	extra := make([]byte, size)
	extra[0] = byte((profile+1)<<3) | byte((srateIndex&0xe)>>1)
	extra[1] = byte((srateIndex&0x1)<<7) | byte(track.Audio.Channels<<3)
	if sbr {
		const syncExtensionType = 0x2B7
		outIndex := len(aacSampleRates)
		for i, rate := range aacSampleRates {
			if rate == uint32(track.Audio.Rate) {
				outIndex = i
				break
			}
		}
		extra[2] = (syncExtensionType >> 3) & 0xFF
		extra[3] = ((syncExtensionType & 0x7) << 5) | 5
		extra[4] = byte(1<<7) | byte(outIndex<<3)
	}
	track.Extra = extra
}

// activateTTA keeps a provided TTA1 header or synthesizes the 30-byte one.
func activateTTA(track *Track) {
	track.Codec = CodecTTA
	if len(track.CodecPrivate) > 0 {
		fillExtra(track, 0)
		return
	}

	extra := make([]byte, 30)
	copy(extra[0:4], "TTA1")
	binary.LittleEndian.PutUint16(extra[4:6], 1)
	binary.LittleEndian.PutUint16(extra[6:8], uint16(track.Audio.Channels))
	binary.LittleEndian.PutUint16(extra[8:10], uint16(track.Audio.BitsPerSample))
	binary.LittleEndian.PutUint32(extra[10:14], uint32(track.Audio.Rate))
	binary.LittleEndian.PutUint32(extra[14:18], 0xFFFFFFFF)
	track.Extra = extra
}

// RealAudio private header offsets, all fields big-endian.
const (
	raVersionOffset       = 4
	raSubPacketHOffset    = 38
	raFrameSizeOffset     = 40
	raSubPacketSizeOffset = 42
	raV4ParamsOffset      = 46
	raV5ParamsOffset      = 54
	raExtraOffset         = 78
)

func activateRealAudio(track *Track) {
	if track.CodecID == "A_REAL/14_4" {
		track.Codec = CodecRA144
		track.Audio.Channels = 1
		track.Audio.Rate = 8000
		track.Audio.BlockAlign = 0x14
		return
	}

	private := track.CodecPrivate
	if len(private) <= 28 {
		track.Codec = CodecUndefined
		return
	}
	if string(private[0:3]) != ".ra" {
		logger.Error("invalid RealAudio private header")
		track.Codec = CodecUndefined
		return
	}
	if len(private) < raSubPacketSizeOffset+2 {
		track.Codec = CodecUndefined
		return
	}

	switch track.CodecID {
	case "A_REAL/COOK":
		track.Codec = CodecCook
		track.Audio.BlockAlign = uint64(binary.BigEndian.Uint16(private[raSubPacketSizeOffset:]))
	case "A_REAL/ATRC":
		track.Codec = CodecATRAC3
	case "A_REAL/28_8":
		track.Codec = CodecRA288
	default:
		track.Codec = CodecUndefined
		return
	}

	cook := &CookState{
		SubPacketH:    binary.BigEndian.Uint16(private[raSubPacketHOffset:]),
		FrameSize:     binary.BigEndian.Uint16(private[raFrameSizeOffset:]),
		SubPacketSize: binary.BigEndian.Uint16(private[raSubPacketSizeOffset:]),
	}
	if err := cook.Init(); err != nil {
		logger.Warning(fmt.Sprintf("track %d: %v", track.Number, err))
		track.Codec = CodecUndefined
		return
	}
	track.Cook = cook

	version := binary.BigEndian.Uint16(private[raVersionOffset:])
	switch {
	case version == 4 && len(private) >= raV4ParamsOffset+8:
		track.Audio.Rate = float64(binary.BigEndian.Uint16(private[raV4ParamsOffset:]))
		track.Audio.BitsPerSample = uint64(binary.BigEndian.Uint16(private[raV4ParamsOffset+4:]))
		track.Audio.Channels = uint64(binary.BigEndian.Uint16(private[raV4ParamsOffset+6:]))
	case version == 5 && len(private) >= raV5ParamsOffset+8:
		track.Audio.Rate = float64(binary.BigEndian.Uint16(private[raV5ParamsOffset:]))
		track.Audio.BitsPerSample = uint64(binary.BigEndian.Uint16(private[raV5ParamsOffset+4:]))
		track.Audio.Channels = uint64(binary.BigEndian.Uint16(private[raV5ParamsOffset+6:]))
	}

	if track.Codec == CodecRA288 {
		fillExtra(track, 0)
	} else {
		fillExtra(track, raExtraOffset)
	}
}

// parseVobSubPrivate extracts the original frame size and the palette from
// the IDX text carried in the codec private data.
func parseVobSubPrivate(track *Track, text string) {
	if start := strings.Index(text, "size:"); start >= 0 {
		var width, height int
		if _, err := fmt.Sscanf(text[start:], "size: %dx%d", &width, &height); err == nil {
			track.Subs.OriginalFrameWidth = width
			track.Subs.OriginalFrameHeight = height
		} else {
			logger.Warning("reading original frame size for vobsub failed")
		}
	}

	start := strings.Index(text, "palette:")
	if start < 0 {
		logger.Warning("reading original palette failed")
		return
	}
	line := text[start+len("palette:"):]
	if end := strings.IndexAny(line, "\r\n"); end >= 0 {
		line = line[:end]
	}

	entries := strings.Split(line, ",")
	if len(entries) != 16 {
		logger.Warning("reading original palette failed")
		return
	}
	var palette [16]uint32
	for i, entry := range entries {
		value, err := strconv.ParseUint(strings.TrimSpace(entry), 16, 32)
		if err != nil {
			logger.Warning("reading original palette failed")
			return
		}
		palette[i] = uint32(value)
	}

	track.Subs.Palette[0] = 0xBEEF
	copy(track.Subs.Palette[1:], palette[:])
}
