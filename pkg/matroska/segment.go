package matroska

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/luispater/mkvdemux-go/internal/logger"
)

var (
	ErrEndOfStream   = errors.New("end of stream")
	ErrNoTracks      = errors.New("segment has no tracks")
	ErrDuplicateCues = errors.New("duplicate Cues element")
	ErrSeekHeadCycle = errors.New("seek head recursion too deep")
)

const (
	// TimecodeScaleDefault is the tick length in nanoseconds when Info carries
	// no TimecodeScale, one tick per millisecond.
	TimecodeScaleDefault = 1000000

	seekHeadMaxDepth = 10
	indexChunk       = 1024
)

// SegmentInfo is the decoded Info element of a segment.
type SegmentInfo struct {
	TimecodeScale uint64
	DurationTicks float64
	Title         string
	MuxingApp     string
	WritingApp    string
	Date          time.Time
	UID           []byte
	PrevUID       []byte
	NextUID       []byte
	Families      [][]byte
}

// Segment is the in-memory model of one Matroska segment: its Info fields,
// the recorded positions of every top-level element, the track list, the cue
// index and the traversal state used by the block extractor.
type Segment struct {
	reader *EBMLReader
	walker *Walker

	dataOffset uint64
	size       uint64

	info SegmentInfo

	seekheadPos    int64
	infoPos        int64
	tracksPos      int64
	cuesPos        int64
	chaptersPos    int64
	attachmentsPos int64
	tagsPos        int64

	infoLoaded        bool
	tracksLoaded      bool
	cuesLoaded        bool
	chaptersLoaded    bool
	attachmentsLoaded bool
	tagsLoaded        bool

	startPos    uint64
	startTimeUS int64

	tracks      []*Track
	editions    []*Edition
	tags        []*Tag
	attachments []*Attachment

	index []CueSlot
	bCues bool

	preloaded bool

	// Extractor state.
	cluster         *EBMLElement
	clusterPos      uint64
	clusterTimeSet  bool
	clusterTimeTick uint64
	blockPos        uint64

	// Cluster time base carried across an UnGet resume, which skips the
	// Timecode element of the re-entered cluster.
	resumeTick    uint64
	resumeTickSet bool
}

// NewSegment validates the EBML header of a Matroska stream and positions the
// walker at the segment's first child.
func NewSegment(r io.ReadSeeker) (*Segment, error) {
	reader := NewEBMLReader(r)

	ebmlHeader, err := reader.ReadElement()
	if err != nil {
		return nil, fmt.Errorf("failed to read EBML header: %w", err)
	}

	if ebmlHeader.ID != EBMLHeaderID {
		return nil, errors.New("not a valid EBML file")
	}

	if err = validateEBMLHeader(ebmlHeader); err != nil {
		return nil, fmt.Errorf("invalid EBML header: %w", err)
	}

	segmentElement, err := reader.ReadElementHeader()
	if err != nil {
		return nil, fmt.Errorf("failed to read segment: %w", err)
	}

	if segmentElement.ID != SegmentID {
		return nil, errors.New("expected Segment element")
	}

	walker, err := NewWalker(reader, segmentElement)
	if err != nil {
		return nil, fmt.Errorf("failed to enter segment: %w", err)
	}

	segment := &Segment{
		reader:     reader,
		walker:     walker,
		dataOffset: segmentElement.DataOffset(),
		size:       segmentElement.Size,
		info: SegmentInfo{
			TimecodeScale: TimecodeScaleDefault,
		},
		seekheadPos:    -1,
		infoPos:        -1,
		tracksPos:      -1,
		cuesPos:        -1,
		chaptersPos:    -1,
		attachmentsPos: -1,
		tagsPos:        -1,
	}

	return segment, nil
}

func validateEBMLHeader(header *EBMLElement) error {
	reader := NewEBMLReader(&bytesReader{data: header.Data})

	var docType string
	var docTypeVersion uint64 = 1

	for reader.Position() < uint64(len(header.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}

		switch child.ID {
		case DocTypeID:
			docType = child.ReadString()
		case DocTypeVersionID:
			docTypeVersion, _ = child.ReadUint()
		}
	}

	if docType != "matroska" && docType != "webm" {
		return fmt.Errorf("unsupported document type: %s", docType)
	}

	if docTypeVersion < 1 {
		return fmt.Errorf("unsupported document version: %d", docTypeVersion)
	}

	return nil
}

// Info returns a copy of the segment information record.
func (s *Segment) Info() SegmentInfo {
	info := s.info
	info.UID = append([]byte(nil), s.info.UID...)
	info.PrevUID = append([]byte(nil), s.info.PrevUID...)
	info.NextUID = append([]byte(nil), s.info.NextUID...)
	if len(s.info.Families) > 0 {
		info.Families = make([][]byte, len(s.info.Families))
		for i, family := range s.info.Families {
			info.Families[i] = append([]byte(nil), family...)
		}
	}
	return info
}

// DurationUS converts the Info duration to microseconds, 0 when absent.
func (s *Segment) DurationUS() int64 {
	if s.info.DurationTicks <= 0 {
		return 0
	}
	return int64(s.info.DurationTicks * float64(s.info.TimecodeScale) / 1000)
}

// TicksToUS converts cluster/block ticks to microseconds.
func (s *Segment) TicksToUS(ticks int64) int64 {
	return ticks * int64(s.info.TimecodeScale) / 1000
}

// SameFamily reports whether both segments share a family UID, which permits
// linked-segment playback.
func (s *Segment) SameFamily(other *Segment) bool {
	for _, fam := range s.info.Families {
		for _, otherFam := range other.info.Families {
			if bytes.Equal(fam, otherFam) {
				return true
			}
		}
	}
	return false
}

// StartPos is the byte offset of the first cluster, 0 before preload finds
// one.
func (s *Segment) StartPos() uint64 {
	return s.startPos
}

// Preload walks the segment's top level, dispatching every element class it
// finds, and stops at the first cluster. The first call returns true; every
// later call is a no-op returning false.
func (s *Segment) Preload() (bool, error) {
	if s.preloaded {
		return false, nil
	}

	for {
		element, err := s.walker.Get()
		if err != nil {
			return false, fmt.Errorf("failed to read segment child: %w", err)
		}
		if element == nil {
			break
		}

		switch element.ID {
		case SeekHeadID:
			s.seekheadPos = int64(element.Offset)
			if errParse := s.parseSeekHeadElement(element, 1); errParse != nil {
				logger.Warning(fmt.Sprintf("failed to parse SeekHead: %v", errParse))
			}
		case SegmentInfoID:
			s.infoPos = int64(element.Offset)
			if !s.infoLoaded {
				if errParse := s.parseInfoElement(element); errParse != nil {
					logger.Warning(fmt.Sprintf("failed to parse Info: %v", errParse))
				}
			}
		case TracksID:
			s.tracksPos = int64(element.Offset)
			if !s.tracksLoaded {
				if errParse := s.parseTracksElement(element); errParse != nil {
					logger.Warning(fmt.Sprintf("failed to parse Tracks: %v", errParse))
				}
			}
		case CuesID:
			s.cuesPos = int64(element.Offset)
			if !s.cuesLoaded {
				if errParse := s.parseCuesElement(element); errParse != nil {
					logger.Warning(fmt.Sprintf("failed to parse Cues: %v", errParse))
				}
			} else {
				logger.Warning("ignoring duplicate Cues element")
			}
		case ChaptersID:
			s.chaptersPos = int64(element.Offset)
			if !s.chaptersLoaded {
				if errParse := s.parseChaptersElement(element); errParse != nil {
					logger.Warning(fmt.Sprintf("failed to parse Chapters: %v", errParse))
				}
			}
		case AttachmentsID:
			s.attachmentsPos = int64(element.Offset)
			if !s.attachmentsLoaded {
				if errParse := s.parseAttachmentsElement(element); errParse != nil {
					logger.Warning(fmt.Sprintf("failed to parse Attachments: %v", errParse))
				}
			}
		case TagsID:
			s.tagsPos = int64(element.Offset)
			if !s.tagsLoaded {
				if errParse := s.parseTagsElement(element); errParse != nil {
					logger.Warning(fmt.Sprintf("failed to parse Tags: %v", errParse))
				}
			}
		case ClusterID:
			s.startPos = element.Offset
			s.walker.Keep()
			return s.finishPreload()
		case VoidID, CRC32ID:
			// padding, nothing to do
		default:
			name := ElementNames[element.ID]
			if name == "" {
				name = fmt.Sprintf("0x%X", element.ID)
			}
			logger.Info(fmt.Sprintf("unknown top-level element %s", name))
		}
	}

	return s.finishPreload()
}

func (s *Segment) finishPreload() (bool, error) {
	s.preloaded = true
	if !s.infoLoaded && s.infoPos >= 0 {
		s.LoadSeekHeadItem(SegmentInfoID, s.infoPos)
	}
	if !s.tracksLoaded && s.tracksPos >= 0 {
		s.LoadSeekHeadItem(TracksID, s.tracksPos)
	}
	if len(s.tracks) == 0 {
		return false, ErrNoTracks
	}
	return true, nil
}

// parseSeekHeadElement decodes (id, position) pairs, recording positions for
// deferred loading. Nested SeekHeads are followed up to seekHeadMaxDepth.
func (s *Segment) parseSeekHeadElement(element *EBMLElement, depth int) error {
	data, err := s.walker.ReadData(element)
	if err != nil {
		return err
	}

	reader := NewEBMLReader(&bytesReader{data: data})

	for reader.Position() < uint64(len(data)) {
		child, errRead := reader.ReadElement()
		if errRead != nil {
			if errRead == io.EOF || errRead == io.ErrUnexpectedEOF {
				break
			}
			return errRead
		}

		if child.ID != SeekID {
			continue
		}

		seekID, seekPos, errParse := parseSeekEntry(child)
		if errParse != nil {
			logger.Warning(fmt.Sprintf("skipping malformed Seek entry: %v", errParse))
			continue
		}
		if seekID == 0 {
			continue
		}

		absolutePos := int64(s.dataOffset) + int64(seekPos)

		switch seekID {
		case SeekHeadID:
			if depth >= seekHeadMaxDepth {
				logger.Warning(ErrSeekHeadCycle.Error())
				continue
			}
			s.seekheadPos = absolutePos
			s.loadNestedSeekHead(absolutePos, depth+1)
		case SegmentInfoID:
			if s.infoPos < 0 {
				s.infoPos = absolutePos
			}
		case TracksID:
			if s.tracksPos < 0 {
				s.tracksPos = absolutePos
			}
		case CuesID:
			if s.cuesPos < 0 {
				s.cuesPos = absolutePos
			}
		case ChaptersID:
			if s.chaptersPos < 0 {
				s.chaptersPos = absolutePos
			}
		case AttachmentsID:
			if s.attachmentsPos < 0 {
				s.attachmentsPos = absolutePos
			}
		case TagsID:
			if s.tagsPos < 0 {
				s.tagsPos = absolutePos
			}
		}
	}

	return nil
}

func parseSeekEntry(element *EBMLElement) (uint32, uint64, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	var seekID uint32
	var seekPosition uint64

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return 0, 0, err
		}

		switch child.ID {
		case SeekIDElementID:
			id, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return 0, 0, errReadUint
			}
			seekID = uint32(id)
		case SeekPositionID:
			pos, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return 0, 0, errReadUint
			}
			seekPosition = pos
		}
	}

	return seekID, seekPosition, nil
}

func (s *Segment) loadNestedSeekHead(position int64, depth int) {
	savedPos := s.reader.Position()
	defer func() {
		_ = s.reader.Seek(savedPos)
	}()

	if err := s.reader.Seek(uint64(position)); err != nil {
		logger.Warning(fmt.Sprintf("failed to seek to nested SeekHead: %v", err))
		return
	}

	element, err := s.reader.ReadElement()
	if err != nil || element.ID != SeekHeadID {
		logger.Warning("nested SeekHead position does not hold a SeekHead")
		return
	}

	if err = s.parseSeekHeadElement(element, depth); err != nil {
		logger.Warning(fmt.Sprintf("failed to parse nested SeekHead: %v", err))
	}
}

// LoadSeekHeadItem parses one deferred element at a recorded position. The
// file position is saved and restored around the call regardless of outcome.
func (s *Segment) LoadSeekHeadItem(classID uint32, position int64) bool {
	savedPos := s.reader.Position()
	defer func() {
		_ = s.reader.Seek(savedPos)
	}()

	if position < 0 {
		return false
	}

	if err := s.reader.Seek(uint64(position)); err != nil {
		logger.Warning(fmt.Sprintf("failed to seek to deferred element: %v", err))
		return false
	}

	element, err := s.reader.ReadElement()
	if err != nil {
		logger.Warning(fmt.Sprintf("failed to read deferred element: %v", err))
		return false
	}

	if element.ID != classID {
		logger.Warning(fmt.Sprintf("expected element 0x%X at position %d, found 0x%X",
			classID, position, element.ID))
		return false
	}

	switch classID {
	case SegmentInfoID:
		err = s.parseInfoElement(element)
	case TracksID:
		err = s.parseTracksElement(element)
	case CuesID:
		err = s.parseCuesElement(element)
	case ChaptersID:
		err = s.parseChaptersElement(element)
	case AttachmentsID:
		err = s.parseAttachmentsElement(element)
	case TagsID:
		err = s.parseTagsElement(element)
	default:
		return false
	}

	if err != nil {
		logger.Warning(fmt.Sprintf("failed to parse deferred element 0x%X: %v", classID, err))
		return false
	}
	return true
}

// indexAppend grows the slot array by a fixed chunk when full; the index is
// strictly append-only.
func (s *Segment) indexAppend(slot CueSlot) {
	if len(s.index) == cap(s.index) {
		grown := make([]CueSlot, len(s.index), cap(s.index)+indexChunk)
		copy(grown, s.index)
		s.index = grown
	}
	s.index = append(s.index, slot)
}

// IndexAppendCluster adds a synthetic slot for a cluster discovered during
// scanning; its time is filled in once the cluster timecode is known.
func (s *Segment) IndexAppendCluster(clusterPos uint64) {
	s.indexAppend(CueSlot{
		TimeUS:   -1,
		Position: int64(clusterPos),
		Track:    -1,
		Block:    -1,
		Key:      true,
	})
}

// Select activates every usable track against the ES output and rewinds the
// walker to the first cluster.
func (s *Segment) Select(out ESOutput) error {
	if err := s.activateTracks(out); err != nil {
		return err
	}

	if err := s.walker.Reset(); err != nil {
		return err
	}
	if s.startPos > 0 {
		if err := s.reader.Seek(s.startPos); err != nil {
			return err
		}
	}
	s.cluster = nil
	s.clusterTimeSet = false
	s.resumeTickSet = false

	if out != nil {
		out.SetNextDisplayTime(s.startTimeUS)
	}
	return nil
}

// UnSelect releases all ES handles and the extractor state.
func (s *Segment) UnSelect(out ESOutput) {
	for _, track := range s.tracks {
		if track.ES != nil {
			if out != nil {
				out.Del(track.ES)
			}
			track.ES = nil
		}
	}
	s.cluster = nil
	s.clusterTimeSet = false
	s.resumeTickSet = false
	_ = s.walker.Reset()
}
