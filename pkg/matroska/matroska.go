package matroska

import (
	"fmt"
	"io"

	"github.com/pborman/uuid"
)

// TrackCategory is the normalized stream category of a track.
type TrackCategory int

const (
	CategoryUnknown TrackCategory = iota
	CategoryVideo
	CategoryAudio
	CategorySubtitle
	CategoryButton
)

func (c TrackCategory) String() string {
	switch c {
	case CategoryVideo:
		return "video"
	case CategoryAudio:
		return "audio"
	case CategorySubtitle:
		return "subtitle"
	case CategoryButton:
		return "button"
	default:
		return "unknown"
	}
}

// TrackVideo carries the decoded video parameters of a track.
type TrackVideo struct {
	PixelWidth    uint64
	PixelHeight   uint64
	DisplayWidth  uint64
	DisplayHeight uint64
	FrameRate     float64
	Interlaced    bool
}

// TrackAudio carries the decoded audio parameters of a track.
type TrackAudio struct {
	Channels      uint64
	Rate          float64
	OriginalRate  float64
	BitsPerSample uint64
	BlockAlign    uint64
	Bitrate       uint64
}

// TrackSubs carries subtitle parameters filled during activation. Palette
// slot 0 holds the 0xBEEF marker when the 16 colors behind it are valid.
type TrackSubs struct {
	Encoding            string
	Palette             [17]uint32
	OriginalFrameWidth  int
	OriginalFrameHeight int
}

// CookState is the RealAudio Cook/ATRAC interleaver state owned by a track.
type CookState struct {
	SubPacketH    uint16
	FrameSize     uint16
	SubPacketSize uint16
	SubPackets    [][]byte
	SubPacketCnt  uint32
}

// Init sizes the interleaver buffers; fails on degenerate header values.
func (c *CookState) Init() error {
	if c.SubPacketSize == 0 || c.FrameSize == 0 || c.SubPacketH == 0 {
		return fmt.Errorf("invalid cook interleaver parameters h=%d frame=%d sub=%d",
			c.SubPacketH, c.FrameSize, c.SubPacketSize)
	}
	count := uint32(c.SubPacketH) * uint32(c.FrameSize) / uint32(c.SubPacketSize)
	c.SubPackets = make([][]byte, count)
	return nil
}

// Track is one TrackEntry of the segment, raw fields from parsing plus the
// normalized descriptor filled by activation.
type Track struct {
	Number          uint64
	UID             uint64
	Category        TrackCategory
	Enabled         bool
	Default         bool
	Forced          bool
	Name            string
	Language        string
	CodecID         string
	CodecPrivate    []byte
	CodecName       string
	DefaultDuration uint64

	Video TrackVideo
	Audio TrackAudio
	Subs  TrackSubs

	// Filled by activation.
	Codec    string
	Extra    []byte
	DTSOnly  bool
	PTSOnly  bool
	Priority int
	Cook     *CookState

	ES      ESHandle
	Silent  bool
	LastDTS int64
}

// CueSlot is one index entry mapping time to a cluster position. Track and
// Block are -1 when the slot is generic (synthesized or track-independent).
type CueSlot struct {
	TimeUS   int64
	Position int64
	Track    int64
	Block    int64
	Key      bool
}

// Block is one extracted frame group with its annotations. Frames holds the
// de-laced payloads in stream order.
type Block struct {
	Track           *Track
	Simple          bool
	TimecodeTicks   int64
	Frames          [][]byte
	Key             bool
	Discardable     bool
	DurationTicks   int64
	Position        uint64
	ClusterPosition uint64
}

// Frame is one elementary-stream frame handed to the ES output. Times are in
// microseconds; -1 means unset.
type Frame struct {
	PTS         int64
	DTS         int64
	DurationUS  int64
	Data        []byte
	Key         bool
	Discardable bool
}

// ESDescriptor is the normalized elementary-stream descriptor handed to the
// ES output when a track is activated.
type ESDescriptor struct {
	TrackNumber uint64
	Category    TrackCategory
	Codec       string
	Language    string
	Priority    int

	Video TrackVideo
	Audio TrackAudio
	Subs  TrackSubs

	Extra []byte
}

// ESHandle is the opaque handle an ESOutput returns from Add.
type ESHandle interface{}

// ESOutput is the downstream elementary-stream sink.
type ESOutput interface {
	Add(desc *ESDescriptor) ESHandle
	Del(h ESHandle)
	Send(h ESHandle, f *Frame)
	SetESDefault(h ESHandle)
	SetPCR(pcrUS int64)
	SetNextDisplayTime(tUS int64)
}

// MetaKind enumerates the normalized metadata fields.
type MetaKind int

const (
	MetaTitle MetaKind = iota
	MetaAlbum
	MetaArtist
	MetaGenre
	MetaCopyright
	MetaTrackNumber
	MetaDescription
	MetaRating
	MetaDate
	MetaURL
	MetaPublisher
	MetaEncodedBy
	MetaTrackTotal
)

func (k MetaKind) String() string {
	names := [...]string{
		MetaTitle:       "title",
		MetaAlbum:       "album",
		MetaArtist:      "artist",
		MetaGenre:       "genre",
		MetaCopyright:   "copyright",
		MetaTrackNumber: "track number",
		MetaDescription: "description",
		MetaRating:      "rating",
		MetaDate:        "date",
		MetaURL:         "url",
		MetaPublisher:   "publisher",
		MetaEncodedBy:   "encoded by",
		MetaTrackTotal:  "track total",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// MetadataSink receives the tag-to-metadata mapping output.
type MetadataSink interface {
	Set(kind MetaKind, value string)
	AddExtra(name, value string)
}

// Target is the scope record of a Tag.
type Target struct {
	TypeValue     uint64
	TrackUID      uint64
	EditionUID    uint64
	ChapterUID    uint64
	AttachmentUID uint64
}

// SimpleTag is one name/value tag node; tags nest arbitrarily.
type SimpleTag struct {
	Name     string
	Value    string
	Language string
	Default  bool
	Children []SimpleTag
}

// Tag is one Tag element: a scope plus its simple tags.
type Tag struct {
	Target     Target
	SimpleTags []SimpleTag
}

// ChapterDisplay is one display string of a chapter.
type ChapterDisplay struct {
	String   string
	Language string
	Country  string
}

// Chapter is one ChapterAtom, possibly nested.
type Chapter struct {
	UID      uint64
	Start    uint64
	End      uint64
	Hidden   bool
	Enabled  bool
	Display  []ChapterDisplay
	Children []*Chapter
}

// Edition is one EditionEntry and its chapters.
type Edition struct {
	UID      uint64
	Hidden   bool
	Default  bool
	Ordered  bool
	Chapters []*Chapter
}

// Attachment is one AttachedFile.
type Attachment struct {
	UID         uint64
	Name        string
	Description string
	MimeType    string
	Data        []byte
}

// Demuxer is the facade over a single Matroska segment: preload, track
// activation, block extraction and seeking.
type Demuxer struct {
	segment *Segment
	out     ESOutput
	key     string
	closed  bool
	pcrUS   int64
}

// NewDemuxer opens a seekable Matroska stream and reads up to the segment
// header. Call Preload to discover the segment's contents.
func NewDemuxer(r io.ReadSeeker) (*Demuxer, error) {
	segment, err := NewSegment(r)
	if err != nil {
		return nil, err
	}

	return &Demuxer{
		segment: segment,
		key:     uuid.New(),
		pcrUS:   -1,
	}, nil
}

func (d *Demuxer) Close() {
	if d.closed {
		return
	}
	d.closed = true
	if d.out != nil {
		d.unselectLocked()
	}
	d.segment = nil
}

// Segment exposes the underlying segment model.
func (d *Demuxer) Segment() *Segment {
	return d.segment
}

// Preload runs the segment's first-pass discovery. Returns true on the first
// successful call and false on every subsequent one.
func (d *Demuxer) Preload() (bool, error) {
	if d.closed {
		return false, fmt.Errorf("demuxer is closed")
	}
	return d.segment.Preload()
}

// Tracks returns the track list. The slice is a copy; the entries are live.
func (d *Demuxer) Tracks() []*Track {
	if d.closed {
		return nil
	}
	result := make([]*Track, len(d.segment.tracks))
	copy(result, d.segment.tracks)
	return result
}

// Info returns a copy of the segment information record.
func (d *Demuxer) Info() *SegmentInfo {
	if d.closed {
		return nil
	}
	info := d.segment.Info()
	return &info
}

// Editions returns the parsed editions.
func (d *Demuxer) Editions() []*Edition {
	if d.closed {
		return nil
	}
	result := make([]*Edition, len(d.segment.editions))
	copy(result, d.segment.editions)
	return result
}

// Attachments returns copies of the parsed attachments.
func (d *Demuxer) Attachments() []*Attachment {
	if d.closed {
		return nil
	}
	result := make([]*Attachment, len(d.segment.attachments))
	for i, attachment := range d.segment.attachments {
		cp := *attachment
		if len(attachment.Data) > 0 {
			cp.Data = make([]byte, len(attachment.Data))
			copy(cp.Data, attachment.Data)
		}
		result[i] = &cp
	}
	return result
}

// Tags returns the parsed tags.
func (d *Demuxer) Tags() []*Tag {
	if d.closed {
		return nil
	}
	result := make([]*Tag, len(d.segment.tags))
	copy(result, d.segment.tags)
	return result
}

// Index returns a copy of the cue index slots.
func (d *Demuxer) Index() []CueSlot {
	if d.closed {
		return nil
	}
	result := make([]CueSlot, len(d.segment.index))
	copy(result, d.segment.index)
	return result
}

// Select activates every usable track against the ES output and positions the
// stream at the first cluster.
func (d *Demuxer) Select(out ESOutput) error {
	if d.closed {
		return fmt.Errorf("demuxer is closed")
	}
	d.out = out
	return d.segment.Select(out)
}

// UnSelect releases all ES handles and the traversal state.
func (d *Demuxer) UnSelect() {
	if d.closed {
		return
	}
	d.unselectLocked()
}

func (d *Demuxer) unselectLocked() {
	d.segment.UnSelect(d.out)
	d.out = nil
}

// BlockGet extracts the next annotated block from the cluster stream.
func (d *Demuxer) BlockGet() (*Block, error) {
	if d.closed {
		return nil, fmt.Errorf("demuxer is closed")
	}
	return d.segment.BlockGet()
}

// Demux extracts one block and sends its frames downstream, advancing the
// published clock.
func (d *Demuxer) Demux() error {
	if d.closed {
		return fmt.Errorf("demuxer is closed")
	}
	if d.out == nil {
		return fmt.Errorf("no ES output selected")
	}

	block, err := d.segment.BlockGet()
	if err != nil {
		return err
	}

	timeUS := d.segment.TicksToUS(block.TimecodeTicks)
	if timeUS > d.pcrUS {
		d.pcrUS = timeUS
		d.out.SetPCR(timeUS)
	}

	d.sendBlock(block, timeUS)
	return nil
}

func (d *Demuxer) sendBlock(block *Block, timeUS int64) {
	track := block.Track
	if track == nil || track.ES == nil {
		return
	}

	durationUS := int64(0)
	if block.DurationTicks > 0 {
		durationUS = d.segment.TicksToUS(block.DurationTicks)
	} else if track.DefaultDuration > 0 {
		durationUS = int64(track.DefaultDuration / 1000)
	}

	for i, data := range block.Frames {
		frame := &Frame{
			PTS:         timeUS,
			DTS:         timeUS,
			DurationUS:  durationUS,
			Data:        data,
			Key:         block.Key,
			Discardable: block.Discardable,
		}
		switch {
		case track.DTSOnly:
			frame.PTS = -1
		case track.PTSOnly:
			frame.DTS = frame.PTS
		}
		if i > 0 {
			frame.PTS = -1
			frame.DTS = -1
		}
		track.LastDTS = timeUS
		d.out.Send(track.ES, frame)
	}
}

// Seek moves playback to the target time. A non-negative position activates
// the cue-less linear-scan path.
func (d *Demuxer) Seek(targetUS, offsetUS, position int64) {
	if d.closed {
		return
	}
	pcr := d.segment.Seek(d.out, targetUS, offsetUS, position)
	if pcr >= 0 {
		d.pcrUS = pcr
	}
}
