package matroska

import (
	"fmt"
	"io"

	"github.com/luispater/mkvdemux-go/internal/logger"
)

// parseInfoElement decodes the Info element into the segment information
// record. Multiple SegmentFamily children accumulate.
func (s *Segment) parseInfoElement(element *EBMLElement) error {
	data, err := s.walker.ReadData(element)
	if err != nil {
		return fmt.Errorf("failed to read Info payload: %w", err)
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

		switch child.ID {
		case TimecodeScaleID:
			scale, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			if scale > 0 {
				s.info.TimecodeScale = scale
			}
		case DurationID:
			duration, errReadFloat := child.ReadFloat()
			if errReadFloat != nil {
				return errReadFloat
			}
			s.info.DurationTicks = duration
		case TitleID:
			s.info.Title = child.ReadString()
		case MuxingAppID:
			s.info.MuxingApp = child.ReadString()
		case WritingAppID:
			s.info.WritingApp = child.ReadString()
		case DateUTCID:
			date, errReadDate := child.ReadDate()
			if errReadDate != nil {
				return errReadDate
			}
			s.info.Date = date
		case SegmentUIDID:
			s.info.UID = child.ReadBytes()
		case PrevUIDID:
			s.info.PrevUID = child.ReadBytes()
		case NextUIDID:
			s.info.NextUID = child.ReadBytes()
		case SegmentFamilyID:
			s.info.Families = append(s.info.Families, child.ReadBytes())
		}
	}

	s.infoLoaded = true
	return nil
}

// parseTracksElement decodes every TrackEntry into the track list.
func (s *Segment) parseTracksElement(element *EBMLElement) error {
	data, err := s.walker.ReadData(element)
	if err != nil {
		return fmt.Errorf("failed to read Tracks payload: %w", err)
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

		if child.ID != TrackEntryID {
			continue
		}

		track, errParse := parseTrackEntry(child)
		if errParse != nil {
			logger.Warning(fmt.Sprintf("skipping malformed track entry: %v", errParse))
			continue
		}
		s.tracks = append(s.tracks, track)
	}

	s.tracksLoaded = true
	return nil
}

func parseTrackEntry(element *EBMLElement) (*Track, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	track := &Track{
		Enabled:  true,
		Language: "eng",
		LastDTS:  -1,
	}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		switch child.ID {
		case TrackNumberID:
			number, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Number = number
		case TrackUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.UID = uid
		case TrackTypeID:
			trackType, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Category = trackCategoryOf(trackType)
		case FlagEnabledID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Enabled = flag != 0
		case FlagDefaultID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Default = flag != 0
		case FlagForcedID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Forced = flag != 0
		case NameID:
			track.Name = child.ReadString()
		case LanguageID:
			if lang := child.ReadString(); lang != "" {
				track.Language = lang
			}
		case CodecIDID:
			track.CodecID = child.ReadString()
		case CodecPrivateID:
			track.CodecPrivate = child.ReadBytes()
		case CodecNameID:
			track.CodecName = child.ReadString()
		case DefaultDurationID:
			duration, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.DefaultDuration = duration
		case VideoID:
			if errParse := parseTrackVideo(child, &track.Video); errParse != nil {
				return nil, errParse
			}
		case AudioID:
			if errParse := parseTrackAudio(child, &track.Audio); errParse != nil {
				return nil, errParse
			}
		}
	}

	if track.Number == 0 {
		return nil, fmt.Errorf("track entry without a track number")
	}

	return track, nil
}

func trackCategoryOf(trackType uint64) TrackCategory {
	switch trackType {
	case 1:
		return CategoryVideo
	case 2:
		return CategoryAudio
	case 17:
		return CategorySubtitle
	case 18:
		return CategoryButton
	default:
		return CategoryUnknown
	}
}

func parseTrackVideo(element *EBMLElement, video *TrackVideo) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}

		switch child.ID {
		case PixelWidthID:
			width, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			video.PixelWidth = width
		case PixelHeightID:
			height, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			video.PixelHeight = height
		case DisplayWidthID:
			width, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			video.DisplayWidth = width
		case DisplayHeightID:
			height, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			video.DisplayHeight = height
		case FlagInterlacedID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			video.Interlaced = flag == 1
		}
	}

	if video.DisplayWidth == 0 {
		video.DisplayWidth = video.PixelWidth
	}
	if video.DisplayHeight == 0 {
		video.DisplayHeight = video.PixelHeight
	}

	return nil
}

func parseTrackAudio(element *EBMLElement, audio *TrackAudio) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	audio.Channels = 1
	audio.Rate = 8000
	audio.OriginalRate = 8000

	var outputRate float64

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}

		switch child.ID {
		case SamplingFrequencyID:
			rate, errReadFloat := child.ReadFloat()
			if errReadFloat != nil {
				return errReadFloat
			}
			audio.Rate = rate
			audio.OriginalRate = rate
		case OutputSamplingFrequencyID:
			rate, errReadFloat := child.ReadFloat()
			if errReadFloat != nil {
				return errReadFloat
			}
			outputRate = rate
		case ChannelsID:
			channels, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			audio.Channels = channels
		case BitDepthID:
			depth, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			audio.BitsPerSample = depth
		}
	}

	if outputRate > 0 {
		audio.Rate = outputRate
	}

	return nil
}

// parseCuesElement decodes the cue index. One slot is appended per
// CueTrackPositions child; a CuePoint with none yields no slots.
func (s *Segment) parseCuesElement(element *EBMLElement) error {
	data, err := s.walker.ReadData(element)
	if err != nil {
		return fmt.Errorf("failed to read Cues payload: %w", err)
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

		if child.ID != CuePointID {
			continue
		}

		if errParse := s.parseCuePoint(child); errParse != nil {
			logger.Warning(fmt.Sprintf("skipping malformed cue point: %v", errParse))
		}
	}

	s.cuesLoaded = true
	s.bCues = len(s.index) > 0
	return nil
}

func (s *Segment) parseCuePoint(element *EBMLElement) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	timeUS := int64(-1)

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}

		switch child.ID {
		case CueTimeID:
			ticks, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			timeUS = s.TicksToUS(int64(ticks))
		case CueTrackPositionsID:
			slot := CueSlot{
				TimeUS:   timeUS,
				Position: -1,
				Track:    -1,
				Block:    -1,
				Key:      true,
			}
			if errParse := s.parseCueTrackPositions(child, &slot); errParse != nil {
				return errParse
			}
			if slot.Position >= 0 {
				s.indexAppend(slot)
			}
		}
	}

	return nil
}

func (s *Segment) parseCueTrackPositions(element *EBMLElement, slot *CueSlot) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}

		switch child.ID {
		case CueTrackID:
			track, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			slot.Track = int64(track)
		case CueClusterPositionID:
			pos, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			slot.Position = int64(s.dataOffset) + int64(pos)
		case CueBlockNumberID:
			block, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			slot.Block = int64(block)
		}
	}

	return nil
}

// parseChaptersElement decodes every EditionEntry with its chapter tree.
func (s *Segment) parseChaptersElement(element *EBMLElement) error {
	data, err := s.walker.ReadData(element)
	if err != nil {
		return fmt.Errorf("failed to read Chapters payload: %w", err)
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

		if child.ID != EditionEntryID {
			continue
		}

		edition, errParse := parseEditionEntry(child)
		if errParse != nil {
			logger.Warning(fmt.Sprintf("skipping malformed edition: %v", errParse))
			continue
		}
		s.editions = append(s.editions, edition)
	}

	s.chaptersLoaded = true
	return nil
}

func parseEditionEntry(element *EBMLElement) (*Edition, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	edition := &Edition{}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		switch child.ID {
		case EditionUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			edition.UID = uid
		case EditionFlagHiddenID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			edition.Hidden = flag != 0
		case EditionFlagDefaultID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			edition.Default = flag != 0
		case EditionFlagOrderedID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			edition.Ordered = flag != 0
		case ChapterAtomID:
			chapter, errParse := parseChapterAtom(child)
			if errParse != nil {
				return nil, errParse
			}
			edition.Chapters = append(edition.Chapters, chapter)
		}
	}

	return edition, nil
}

func parseChapterAtom(element *EBMLElement) (*Chapter, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	chapter := &Chapter{Enabled: true}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		switch child.ID {
		case ChapterUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.UID = uid
		case ChapterTimeStartID:
			start, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.Start = start
		case ChapterTimeEndID:
			end, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.End = end
		case ChapterFlagHiddenID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.Hidden = flag != 0
		case ChapterFlagEnabledID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.Enabled = flag != 0
		case ChapterDisplayID:
			display, errParse := parseChapterDisplay(child)
			if errParse != nil {
				return nil, errParse
			}
			chapter.Display = append(chapter.Display, display)
		case ChapterAtomID:
			nested, errParse := parseChapterAtom(child)
			if errParse != nil {
				return nil, errParse
			}
			chapter.Children = append(chapter.Children, nested)
		}
	}

	return chapter, nil
}

func parseChapterDisplay(element *EBMLElement) (ChapterDisplay, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	display := ChapterDisplay{Language: "eng"}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return display, err
		}

		switch child.ID {
		case ChapStringID:
			display.String = child.ReadString()
		case ChapLanguageID:
			display.Language = child.ReadString()
		case ChapCountryID:
			display.Country = child.ReadString()
		}
	}

	return display, nil
}

// parseAttachmentsElement decodes every AttachedFile.
func (s *Segment) parseAttachmentsElement(element *EBMLElement) error {
	data, err := s.walker.ReadData(element)
	if err != nil {
		return fmt.Errorf("failed to read Attachments payload: %w", err)
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

		if child.ID != AttachedFileID {
			continue
		}

		attachment, errParse := parseAttachedFile(child)
		if errParse != nil {
			logger.Warning(fmt.Sprintf("skipping malformed attachment: %v", errParse))
			continue
		}
		s.attachments = append(s.attachments, attachment)
	}

	s.attachmentsLoaded = true
	return nil
}

func parseAttachedFile(element *EBMLElement) (*Attachment, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	attachment := &Attachment{}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		switch child.ID {
		case FileUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			attachment.UID = uid
		case FileNameID:
			attachment.Name = child.ReadString()
		case FileDescriptionID:
			attachment.Description = child.ReadString()
		case FileMimeTypeID:
			attachment.MimeType = child.ReadString()
		case FileDataID:
			attachment.Data = child.ReadBytes()
		}
	}

	return attachment, nil
}

// parseTagsElement decodes every Tag with its target scope and simple tags.
func (s *Segment) parseTagsElement(element *EBMLElement) error {
	data, err := s.walker.ReadData(element)
	if err != nil {
		return fmt.Errorf("failed to read Tags payload: %w", err)
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

		if child.ID != TagID {
			continue
		}

		tag, errParse := parseTag(child)
		if errParse != nil {
			logger.Warning(fmt.Sprintf("skipping malformed tag: %v", errParse))
			continue
		}
		s.tags = append(s.tags, tag)
	}

	s.tagsLoaded = true
	return nil
}

func parseTag(element *EBMLElement) (*Tag, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	tag := &Tag{
		Target: Target{TypeValue: 50},
	}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		switch child.ID {
		case TargetsID:
			if errParse := parseTagTargets(child, &tag.Target); errParse != nil {
				return nil, errParse
			}
		case SimpleTagID:
			simple, errParse := parseSimpleTag(child)
			if errParse != nil {
				return nil, errParse
			}
			tag.SimpleTags = append(tag.SimpleTags, simple)
		}
	}

	return tag, nil
}

func parseTagTargets(element *EBMLElement, target *Target) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}

		switch child.ID {
		case TargetTypeValueID:
			value, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			target.TypeValue = value
		case TagTrackUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			target.TrackUID = uid
		case TagEditionUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			target.EditionUID = uid
		case TagChapterUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			target.ChapterUID = uid
		case TagAttachmentUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			target.AttachmentUID = uid
		}
	}

	return nil
}

func parseSimpleTag(element *EBMLElement) (SimpleTag, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	simple := SimpleTag{Language: "und", Default: true}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return simple, err
		}

		switch child.ID {
		case TagNameID:
			simple.Name = child.ReadString()
		case TagStringID:
			simple.Value = child.ReadString()
		case TagLanguageID:
			simple.Language = child.ReadString()
		case TagDefaultID:
			flag, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return simple, errReadUint
			}
			simple.Default = flag != 0
		case SimpleTagID:
			nested, errParse := parseSimpleTag(child)
			if errParse != nil {
				return simple, errParse
			}
			simple.Children = append(simple.Children, nested)
		}
	}

	return simple, nil
}
