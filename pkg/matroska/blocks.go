package matroska

import (
	"fmt"

	"github.com/luispater/mkvdemux-go/internal/logger"
)

// Block header flag bits.
const (
	blockFlagKey         = 0x80
	blockFlagDiscardable = 0x01
	blockLacingMask      = 0x06

	lacingNone  = 0x00
	lacingXiph  = 0x02
	lacingFixed = 0x04
	lacingEBML  = 0x06
)

// pendingBlock is a parsed Block/SimpleBlock payload waiting for its group
// annotations before being handed out.
type pendingBlock struct {
	trackNumber uint64
	relTicks    int16
	flags       byte
	frames      [][]byte
	simple      bool
	position    uint64
}

// parseBlockPayload splits a raw block payload into track number, relative
// timecode, flags and de-laced frames.
func parseBlockPayload(data []byte) (*pendingBlock, error) {
	trackNumber, width := readDataVINT(data)
	if width == 0 || len(data) < width+3 {
		return nil, ErrInvalidEBML
	}

	relTicks := int16(uint16(data[width])<<8 | uint16(data[width+1]))
	flags := data[width+2]

	frames, err := delace(data[width+3:], flags)
	if err != nil {
		return nil, err
	}

	return &pendingBlock{
		trackNumber: trackNumber,
		relTicks:    relTicks,
		flags:       flags,
		frames:      frames,
	}, nil
}

// delace splits a laced payload into frames. The last frame always takes the
// remaining bytes; fixed lacing requires an exact division.
func delace(payload []byte, flags byte) ([][]byte, error) {
	mode := flags & blockLacingMask
	if mode == lacingNone {
		return [][]byte{payload}, nil
	}

	if len(payload) < 1 {
		return nil, ErrInvalidEBML
	}
	count := int(payload[0]) + 1
	payload = payload[1:]

	sizes := make([]int, count)

	switch mode {
	case lacingXiph:
		for i := 0; i < count-1; i++ {
			size := 0
			for {
				if len(payload) == 0 {
					return nil, ErrInvalidEBML
				}
				b := payload[0]
				payload = payload[1:]
				size += int(b)
				if b != 255 {
					break
				}
			}
			sizes[i] = size
		}

	case lacingEBML:
		if count > 1 {
			first, w := readDataVINT(payload)
			if w == 0 {
				return nil, ErrInvalidEBML
			}
			payload = payload[w:]
			sizes[0] = int(first)

			prev := int64(first)
			for i := 1; i < count-1; i++ {
				delta, dw := readDataSVINT(payload)
				if dw == 0 {
					return nil, ErrInvalidEBML
				}
				payload = payload[dw:]
				prev += delta
				if prev < 0 {
					return nil, ErrInvalidEBML
				}
				sizes[i] = int(prev)
			}
		}

	case lacingFixed:
		if len(payload)%count != 0 {
			return nil, ErrInvalidEBML
		}
		for i := range sizes {
			sizes[i] = len(payload) / count
		}
	}

	frames := make([][]byte, count)
	offset := 0
	for i := 0; i < count-1; i++ {
		if offset+sizes[i] > len(payload) {
			return nil, ErrInvalidEBML
		}
		frames[i] = payload[offset : offset+sizes[i]]
		offset += sizes[i]
	}
	if mode == lacingFixed {
		frames[count-1] = payload[offset : offset+sizes[count-1]]
	} else {
		if offset > len(payload) {
			return nil, ErrInvalidEBML
		}
		frames[count-1] = payload[offset:]
	}

	return frames, nil
}

// BlockGet walks the cluster stream and returns the next annotated block.
// Blocks whose track number matches no known track are dropped and the walk
// continues. ErrEndOfStream reports the natural end of the segment.
func (s *Segment) BlockGet() (*Block, error) {
	var pending *pendingBlock
	durationTicks := int64(0)
	key := true
	discardable := false

	for {
		var element *EBMLElement

		if pending == nil || !pending.simple {
			var err error
			element, err = s.walker.Get()
			if err != nil {
				return nil, fmt.Errorf("failed to read cluster stream: %w", err)
			}
		}

		if pending != nil && (pending.simple || element == nil) {
			block := s.finishBlock(pending, key, discardable, durationTicks)
			if block == nil {
				pending = nil
				key = true
				discardable = false
				durationTicks = 0
				continue
			}
			return block, nil
		}

		level := s.walker.Level()

		if element == nil {
			if level > 1 {
				if err := s.walker.Up(); err != nil {
					return nil, err
				}
				continue
			}
			logger.Warning("end of stream")
			return nil, ErrEndOfStream
		}

		// A corrupt file or a cue-less seek can land the walker outside
		// the cluster it thinks it is in.
		if level > 1 {
			if s.cluster != nil && !s.walker.InStack(s.cluster) {
				logger.Warning("unexpected escape from current cluster")
				s.cluster = nil
			}
			if s.cluster == nil {
				continue
			}
		}

		switch level {
		case 1:
			switch element.ID {
			case ClusterID:
				s.cluster = element
				s.clusterPos = element.Offset
				if s.resumeTickSet {
					s.clusterTimeTick = s.resumeTick
					s.clusterTimeSet = true
					s.resumeTickSet = false
				} else {
					s.clusterTimeSet = false
				}
				for _, track := range s.tracks {
					track.Silent = false
				}
				if err := s.walker.Down(); err != nil {
					return nil, err
				}
			case CuesID:
				logger.Warning("unexpected Cues element in the cluster stream")
				return nil, fmt.Errorf("unexpected Cues element during playback")
			default:
				name := ElementNames[element.ID]
				if name == "" {
					name = fmt.Sprintf("0x%X", element.ID)
				}
				logger.Info(fmt.Sprintf("skipping element %s", name))
			}

		case 2:
			switch element.ID {
			case TimecodeID:
				data, err := s.walker.ReadData(element)
				if err != nil {
					return nil, err
				}
				element.Data = data
				ticks, err := element.ReadUint()
				if err != nil {
					return nil, err
				}
				s.clusterTimeTick = ticks
				s.clusterTimeSet = true

				if n := len(s.index); n == 0 || s.index[n-1].Position < int64(s.clusterPos) {
					s.IndexAppendCluster(s.clusterPos)
				}
			case SilentTracksID:
				if err := s.walker.Down(); err != nil {
					return nil, err
				}
			case BlockGroupID:
				s.blockPos = element.Offset
				key = true
				discardable = false
				durationTicks = 0
				if err := s.walker.Down(); err != nil {
					return nil, err
				}
			case SimpleBlockID:
				data, err := s.walker.ReadData(element)
				if err != nil {
					return nil, err
				}
				parsed, err := parseBlockPayload(data)
				if err != nil {
					logger.Warning(fmt.Sprintf("dropping malformed block: %v", err))
					continue
				}
				parsed.simple = true
				parsed.position = element.Offset
				pending = parsed
			}

		case 3:
			switch element.ID {
			case BlockID:
				data, err := s.walker.ReadData(element)
				if err != nil {
					return nil, err
				}
				parsed, err := parseBlockPayload(data)
				if err != nil {
					logger.Warning(fmt.Sprintf("dropping malformed block: %v", err))
					continue
				}
				parsed.position = s.blockPos
				pending = parsed
			case BlockDurationID:
				data, err := s.walker.ReadData(element)
				if err != nil {
					return nil, err
				}
				element.Data = data
				duration, err := element.ReadUint()
				if err != nil {
					return nil, err
				}
				durationTicks = int64(duration)
			case ReferenceBlockID:
				data, err := s.walker.ReadData(element)
				if err != nil {
					return nil, err
				}
				element.Data = data
				reference, err := element.ReadInt()
				if err != nil {
					return nil, err
				}
				if key {
					key = false
				} else if reference > 0 {
					discardable = true
				}
			case SilentTrackNumberID:
				data, err := s.walker.ReadData(element)
				if err != nil {
					return nil, err
				}
				element.Data = data
				number, err := element.ReadUint()
				if err != nil {
					return nil, err
				}
				if track := s.findTrack(number); track != nil {
					track.Silent = true
				}
			}

		default:
			return nil, fmt.Errorf("invalid traversal level %d", level)
		}
	}
}

// finishBlock validates and annotates a parsed block. A nil return means the
// block was dropped and the caller should continue scanning.
func (s *Segment) finishBlock(pending *pendingBlock, key, discardable bool, durationTicks int64) *Block {
	track := s.findTrack(pending.trackNumber)
	if track == nil {
		logger.Warning(fmt.Sprintf("dropping block of unknown track %d", pending.trackNumber))
		return nil
	}

	if pending.simple {
		key = pending.flags&blockFlagKey != 0
		discardable = pending.flags&blockFlagDiscardable != 0
	}

	// The second bit of a Theora frame marks a non-keyframe regardless of
	// what the container says.
	if key && track.Codec == CodecTheora {
		if len(pending.frames) == 0 || len(pending.frames[0]) == 0 {
			key = false
		} else if pending.frames[0][0]&0x40 != 0 {
			key = false
		}
	}

	block := &Block{
		Track:           track,
		Simple:          pending.simple,
		TimecodeTicks:   int64(s.clusterTimeTick) + int64(pending.relTicks),
		Frames:          pending.frames,
		Key:             key,
		Discardable:     discardable,
		DurationTicks:   durationTicks,
		Position:        pending.position,
		ClusterPosition: s.clusterPos,
	}

	if n := len(s.index); n > 0 && s.index[n-1].TimeUS == -1 {
		s.index[n-1].TimeUS = s.TicksToUS(block.TimecodeTicks)
		s.index[n-1].Key = key
	}

	return block
}

func (s *Segment) findTrack(number uint64) *Track {
	for _, track := range s.tracks {
		if track.Number == number {
			return track
		}
	}
	return nil
}
