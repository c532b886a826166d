package extract

import (
	"bufio"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/luispater/mkvdemux-go/internal/logger"
	"github.com/luispater/mkvdemux-go/pkg/errors"
	"github.com/luispater/mkvdemux-go/pkg/languages"
	"github.com/luispater/mkvdemux-go/pkg/matroska"
	"github.com/luispater/mkvdemux-go/pkg/srt"
)

// SubtitleEntry represents a single timed subtitle cue
type SubtitleEntry struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Extractor pulls text subtitle tracks out of a Matroska file
type Extractor struct {
	filename string
	file     *os.File
	demuxer  *matroska.Demuxer
}

// NewExtractor creates an extractor for the given file
func NewExtractor(filename string) *Extractor {
	return &Extractor{filename: filename}
}

// Open opens the file and discovers the segment contents
func (e *Extractor) Open() error {
	file, err := os.Open(e.filename)
	if err != nil {
		return errors.NewFileError(fmt.Sprintf("failed to open file: %s", e.filename), err)
	}

	demuxer, err := matroska.NewDemuxer(file)
	if err != nil {
		_ = file.Close()
		return errors.NewFormatError("not a Matroska stream", err)
	}

	if _, err = demuxer.Preload(); err != nil {
		_ = file.Close()
		return errors.NewFormatError("failed to preload segment", err)
	}

	e.file = file
	e.demuxer = demuxer
	return nil
}

// Close releases the demuxer and the underlying file
func (e *Extractor) Close() {
	if e.demuxer != nil {
		e.demuxer.Close()
		e.demuxer = nil
	}
	if e.file != nil {
		_ = e.file.Close()
		e.file = nil
	}
}

// Demuxer exposes the underlying demuxer
func (e *Extractor) Demuxer() *matroska.Demuxer {
	return e.demuxer
}

// SubtitleTracks returns the text subtitle tracks of the segment
func (e *Extractor) SubtitleTracks() []*matroska.Track {
	var result []*matroska.Track
	for _, track := range e.demuxer.Tracks() {
		if track.Category != matroska.CategorySubtitle {
			continue
		}
		if isTextCodec(track.CodecID) {
			result = append(result, track)
		}
	}
	return result
}

// SelectBestTrack picks a subtitle track: a preferred-language match first,
// then any non-SDH track, then the first one.
func (e *Extractor) SelectBestTrack(preferred []string) (*matroska.Track, error) {
	tracks := e.SubtitleTracks()
	if len(tracks) == 0 {
		return nil, errors.NewExtractionError("no text subtitle tracks found", nil)
	}

	for _, want := range preferred {
		var candidates []*matroska.Track
		for _, track := range tracks {
			if languages.Matches(track.Language, want) {
				candidates = append(candidates, track)
			}
		}
		for _, track := range candidates {
			if !isSDHTrack(track.Name) {
				return track, nil
			}
		}
		if len(candidates) > 0 {
			return candidates[0], nil
		}
	}

	for _, track := range tracks {
		if !isSDHTrack(track.Name) {
			return track, nil
		}
	}
	return tracks[0], nil
}

// ExtractTrack demuxes the whole segment and collects the cues of one track
func (e *Extractor) ExtractTrack(track *matroska.Track) ([]SubtitleEntry, error) {
	sink := &subtitleSink{trackNumber: track.Number}
	if err := e.demuxer.Select(sink); err != nil {
		return nil, errors.NewExtractionError("failed to select tracks", err)
	}
	defer e.demuxer.UnSelect()

	for {
		err := e.demuxer.Demux()
		if err == nil {
			continue
		}
		if stdErrors.Is(err, matroska.ErrEndOfStream) {
			break
		}
		return nil, errors.NewExtractionError("failed to demux", err)
	}

	fixupEndTimes(sink.entries)
	return sink.entries, nil
}

// ExtractToSRT writes one track's cues to an SRT file
func (e *Extractor) ExtractToSRT(track *matroska.Track, outputPath string) error {
	entries, err := e.ExtractTrack(track)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.NewExtractionError("subtitle track is empty", nil)
	}

	var subtitles []srt.Subtitle
	for i, entry := range entries {
		subtitles = append(subtitles, srt.Subtitle{
			Index:   i + 1,
			Start:   entry.Start,
			End:     entry.End,
			Content: entry.Text,
		})
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return errors.NewFileError(fmt.Sprintf("failed to create output file: %s", outputPath), err)
	}
	defer func() {
		if errClose := file.Close(); errClose != nil {
			logger.Warning(fmt.Sprintf("failed to close output file: %v", errClose))
		}
	}()

	writer := bufio.NewWriter(file)
	if _, errWrite := writer.WriteString(srt.ComposeSRT(subtitles)); errWrite != nil {
		return errors.NewFileError("failed to write SRT content", errWrite)
	}
	return writer.Flush()
}

// ExtractSubtitlesFromMKV extracts the best subtitle track of a file and
// returns the path of the written SRT.
func ExtractSubtitlesFromMKV(mkvPath string, preferred []string) (string, error) {
	if _, err := os.Stat(mkvPath); os.IsNotExist(err) {
		return "", errors.NewFileError(fmt.Sprintf("file does not exist: %s", mkvPath), err)
	}

	extractor := NewExtractor(mkvPath)
	if err := extractor.Open(); err != nil {
		return "", err
	}
	defer extractor.Close()

	track, err := extractor.SelectBestTrack(preferred)
	if err != nil {
		return "", err
	}

	baseName := strings.TrimSuffix(filepath.Base(mkvPath), filepath.Ext(mkvPath))
	outputPath := filepath.Join(filepath.Dir(mkvPath), baseName+"_extracted.srt")

	if err = extractor.ExtractToSRT(track, outputPath); err != nil {
		return "", err
	}

	logger.Success(fmt.Sprintf("extracted track %d to %s", track.Number, outputPath))
	return outputPath, nil
}

// subtitleSink is an ES output that collects the cues of one track and
// ignores everything else.
type subtitleSink struct {
	trackNumber uint64
	entries     []SubtitleEntry
}

type subtitleHandle struct {
	wanted bool
	codec  string
}

func (s *subtitleSink) Add(desc *matroska.ESDescriptor) matroska.ESHandle {
	if desc.TrackNumber != s.trackNumber {
		return &subtitleHandle{}
	}
	return &subtitleHandle{wanted: true, codec: desc.Codec}
}

func (s *subtitleSink) Del(matroska.ESHandle) {}

func (s *subtitleSink) Send(h matroska.ESHandle, f *matroska.Frame) {
	handle, ok := h.(*subtitleHandle)
	if !ok || !handle.wanted || f.PTS < 0 {
		return
	}

	text := decodeText(handle.codec, f.Data)
	if text == "" {
		return
	}

	start := time.Duration(f.PTS) * time.Microsecond
	end := start
	if f.DurationUS > 0 {
		end = start + time.Duration(f.DurationUS)*time.Microsecond
	}
	s.entries = append(s.entries, SubtitleEntry{Start: start, End: end, Text: text})
}

func (s *subtitleSink) SetESDefault(matroska.ESHandle) {}
func (s *subtitleSink) SetPCR(int64)                   {}
func (s *subtitleSink) SetNextDisplayTime(int64)       {}

// fixupEndTimes gives cues without a duration a bounded synthetic one.
func fixupEndTimes(entries []SubtitleEntry) {
	for i := range entries {
		if entries[i].End > entries[i].Start {
			continue
		}
		end := entries[i].Start + 3*time.Second
		if i+1 < len(entries) && entries[i+1].Start < end {
			end = entries[i+1].Start
		}
		entries[i].End = end
	}
}

// isSDHTrack reports whether a track name marks a hearing-impaired variant.
func isSDHTrack(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{"sdh", "deaf", "hard of hearing", "closed caption", "[cc]", "(cc)"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isTextCodec(codecID string) bool {
	return strings.HasPrefix(codecID, "S_TEXT/") || codecID == "S_SSA" || codecID == "S_ASS"
}

// decodeText turns a subtitle frame into plain text. SSA frames carry the
// dialogue in the ninth comma-separated field.
func decodeText(codec string, data []byte) string {
	text := strings.TrimSpace(string(data))
	if codec != matroska.CodecSSA {
		return text
	}

	fields := strings.SplitN(text, ",", 9)
	if len(fields) == 9 {
		text = fields[8]
	}
	text = strings.ReplaceAll(text, "\\N", "\n")
	text = strings.ReplaceAll(text, "\\n", "\n")
	text = stripOverrideTags(text)
	return strings.TrimSpace(text)
}

// stripOverrideTags removes {...} style override blocks from SSA dialogue.
func stripOverrideTags(text string) string {
	var b strings.Builder
	depth := 0
	for _, r := range text {
		switch {
		case r == '{':
			depth++
		case r == '}' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
