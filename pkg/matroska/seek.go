package matroska

import (
	"fmt"

	"github.com/luispater/mkvdemux-go/internal/logger"
)

// seekPoint is one track's candidate rendezvous while scanning for keyframes.
type seekPoint struct {
	track       *Track
	dateUS      int64
	seekPos     int64
	clusterPos  int64
	clusterTick uint64
}

// Seek positions playback at targetUS. offsetUS is the enclosing chapter's
// time base. A non-negative globalPos activates the cue-less path: the cluster
// stream is scanned linearly, extending the index, until the file position
// reaches it. Returns the published PCR in microseconds, -1 when nothing was
// published.
func (s *Segment) Seek(out ESOutput, targetUS, offsetUS, globalPos int64) int64 {
	for _, track := range s.tracks {
		track.LastDTS = -1
	}

	if globalPos >= 0 {
		s.scanToPosition(globalPos)
	}

	// A plain rewind needs no keyframe hunt.
	if targetUS == 0 && offsetUS == 0 {
		if err := s.rewindTo(s.startPos); err != nil {
			logger.Warning(fmt.Sprintf("failed to rewind: %v", err))
			return -1
		}
		if out != nil {
			out.SetPCR(0)
			out.SetNextDisplayTime(0)
		}
		return 0
	}

	seekPos := int64(s.startPos)
	seekTime := s.startTimeUS
	idx := 0
	if len(s.index) > 0 {
		for ; idx < len(s.index); idx++ {
			if s.index[idx].TimeUS+offsetUS > targetUS {
				break
			}
		}
		if idx > 0 {
			idx--
		}
		seekPos = s.index[idx].Position
		seekTime = s.index[idx].TimeUS
	}

	if err := s.rewindTo(uint64(seekPos)); err != nil {
		logger.Warning(fmt.Sprintf("failed to seek: %v", err))
		return -1
	}

	points := s.collectSeekPoints(seekTime, seekPos)
	if len(points) == 0 {
		if out != nil {
			out.SetPCR(targetUS)
			out.SetNextDisplayTime(targetUS)
		}
		return targetUS
	}
	category := points[0].track.Category

	date := targetUS
	hasKey := false
	for {
		pts := int64(0)
		for pts < date {
			block, err := s.BlockGet()
			if err != nil {
				logger.Warning("cannot get block, EOF?")
				return -1
			}

			pts = offsetUS + s.TicksToUS(block.TimecodeTicks)

			if block.Track.Category == category && block.Key {
				for _, sp := range points {
					if sp.track == block.Track {
						sp.dateUS = pts
						sp.seekPos = int64(block.Position)
						sp.clusterPos = int64(block.ClusterPosition)
						sp.clusterTick = s.clusterTimeTick
						hasKey = true
						break
					}
				}
			}
		}

		if hasKey || idx == 0 {
			break
		}

		// No keyframe before the target in this stretch, back off one slot.
		date = offsetUS + s.index[idx].TimeUS
		idx--
		if err := s.rewindTo(uint64(s.index[idx].Position)); err != nil {
			logger.Warning(fmt.Sprintf("failed to seek: %v", err))
			return -1
		}
	}

	min := points[0]
	for _, sp := range points[1:] {
		if sp.dateUS < min.dateUS {
			min = sp
		}
	}

	if out != nil {
		out.SetPCR(min.dateUS)
		out.SetNextDisplayTime(targetUS)
	}

	if err := s.walker.UnGet(uint64(min.seekPos), uint64(min.clusterPos)); err != nil {
		logger.Warning(fmt.Sprintf("failed to rewind to seek point: %v", err))
		return min.dateUS
	}
	s.cluster = nil
	s.clusterTimeSet = false
	s.resumeTick = min.clusterTick
	s.resumeTickSet = true

	return min.dateUS
}

// scanToPosition extends the index by walking clusters linearly until the
// file position reaches globalPos. Used when the file carries no cues.
func (s *Segment) scanToPosition(globalPos int64) {
	start := s.startPos
	if len(s.index) > 0 {
		start = uint64(s.index[len(s.index)-1].Position)
	}
	if err := s.rewindTo(start); err != nil {
		logger.Warning(fmt.Sprintf("failed to start position scan: %v", err))
		return
	}

	for {
		element, err := s.walker.Get()
		if err != nil || element == nil {
			return
		}
		if element.ID != ClusterID {
			continue
		}

		s.clusterPos = element.Offset
		if n := len(s.index); n == 0 || s.index[n-1].Position < int64(element.Offset) {
			s.IndexAppendCluster(element.Offset)
		}
		if s.reader.Position() >= uint64(globalPos) {
			return
		}
	}
}

// rewindTo reinitializes the traversal at an absolute byte position inside
// the segment.
func (s *Segment) rewindTo(pos uint64) error {
	if err := s.walker.Reset(); err != nil {
		return err
	}
	if pos > 0 {
		if err := s.reader.Seek(pos); err != nil {
			return err
		}
	}
	s.cluster = nil
	s.clusterTimeSet = false
	s.resumeTickSet = false
	return nil
}

// collectSeekPoints builds one seek point per activated track of the first
// category, in Video, Audio, Subtitle order, that has any.
func (s *Segment) collectSeekPoints(seekTimeUS, seekPos int64) []*seekPoint {
	for _, category := range []TrackCategory{CategoryVideo, CategoryAudio, CategorySubtitle} {
		var points []*seekPoint
		for _, track := range s.tracks {
			if track.Category != category || track.ES == nil {
				continue
			}
			points = append(points, &seekPoint{
				track:      track,
				dateUS:     seekTimeUS,
				seekPos:    seekPos,
				clusterPos: seekPos,
			})
		}
		if len(points) > 0 {
			return points
		}
	}
	return nil
}
