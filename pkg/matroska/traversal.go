package matroska

import (
	"io"
)

// topLevelIDs are the classes that can only appear as direct children of the
// segment. Hitting one of them while inside an unknown-size element means
// that element has ended.
var topLevelIDs = map[uint32]bool{
	SeekHeadID:    true,
	SegmentInfoID: true,
	TracksID:      true,
	CuesID:        true,
	ChaptersID:    true,
	AttachmentsID: true,
	TagsID:        true,
	ClusterID:     true,
}

type walkerFrame struct {
	el  *EBMLElement
	end uint64
}

// Walker iterates the EBML element tree of a segment with lazy descent. It
// keeps a stack of open master elements; Get yields the next child of the
// innermost one, Down/Up move between levels, Keep re-arms the last element,
// and UnGet rebuilds the stack at a remembered (block, cluster) pair.
type Walker struct {
	reader *EBMLReader
	stack  []walkerFrame
	last   *EBMLElement
	kept   bool

	resumePos   uint64
	resumeArmed bool
}

func NewWalker(reader *EBMLReader, segment *EBMLElement) (*Walker, error) {
	w := &Walker{
		reader: reader,
		stack:  []walkerFrame{{el: segment, end: frameEnd(segment)}},
	}
	if err := reader.Seek(segment.DataOffset()); err != nil {
		return nil, err
	}
	return w, nil
}

func frameEnd(el *EBMLElement) uint64 {
	if el.Size == SizeUnknown {
		return SizeUnknown
	}
	return el.EndOffset()
}

// Level is the depth of the stack; the segment itself is level 0, so elements
// returned by Get while only the segment is open are level-1 elements.
func (w *Walker) Level() int {
	return len(w.stack)
}

// Get returns the next child of the innermost open element, or nil when the
// element has no more children. Payload bytes are not consumed; use ReadData.
func (w *Walker) Get() (*EBMLElement, error) {
	if w.kept {
		w.kept = false
		return w.last, nil
	}

	if len(w.stack) == 0 {
		return nil, nil
	}
	top := w.stack[len(w.stack)-1]

	pos := w.reader.Position()
	if top.end != SizeUnknown && pos >= top.end {
		return nil, nil
	}

	element, err := w.reader.ReadElementHeader()
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, nil
		}
		return nil, err
	}

	// An unknown-size master ends when a class that belongs further up shows
	// up in its child stream.
	if top.end == SizeUnknown && top.el.ID != SegmentID && topLevelIDs[element.ID] {
		if errSeek := w.reader.Seek(element.Offset); errSeek != nil {
			return nil, errSeek
		}
		return nil, nil
	}

	if element.Size != SizeUnknown {
		if errSeek := w.reader.Seek(element.EndOffset()); errSeek != nil {
			return nil, errSeek
		}
	}

	w.last = element
	return element, nil
}

// Keep re-arms the most recently returned element so the next Get yields it
// again.
func (w *Walker) Keep() {
	if w.last != nil {
		w.kept = true
	}
}

// Down descends into the most recently returned element. After an UnGet the
// first descent resumes at the remembered block position instead of the
// element's first child.
func (w *Walker) Down() error {
	if w.last == nil {
		return ErrInvalidEBML
	}

	w.stack = append(w.stack, walkerFrame{el: w.last, end: frameEnd(w.last)})

	target := w.last.DataOffset()
	if w.resumeArmed {
		target = w.resumePos
		w.resumeArmed = false
	}
	return w.reader.Seek(target)
}

// Up leaves the innermost open element and positions after it. The segment
// frame is never popped.
func (w *Walker) Up() error {
	if len(w.stack) <= 1 {
		return nil
	}

	frame := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	w.kept = false

	if frame.end != SizeUnknown {
		return w.reader.Seek(frame.end)
	}
	return nil
}

// InStack reports whether el is one of the currently open master elements.
func (w *Walker) InStack(el *EBMLElement) bool {
	for _, frame := range w.stack {
		if frame.el == el {
			return true
		}
	}
	return false
}

// UnGet rewinds to clusterPos so the next Get yields that cluster as a
// level-1 element; the first Down into it then resumes at blockPos.
func (w *Walker) UnGet(blockPos, clusterPos uint64) error {
	w.stack = w.stack[:1]
	w.last = nil
	w.kept = false
	w.resumePos = blockPos
	w.resumeArmed = true
	return w.reader.Seek(clusterPos)
}

// Reset drops all open elements and seeks back to the segment's first child.
func (w *Walker) Reset() error {
	w.stack = w.stack[:1]
	w.last = nil
	w.kept = false
	w.resumeArmed = false
	return w.reader.Seek(w.stack[0].el.DataOffset())
}

// ReadData returns the payload of an element yielded by Get, reading it from
// the stream without disturbing the walker's position.
func (w *Walker) ReadData(el *EBMLElement) ([]byte, error) {
	if el.Data != nil {
		return el.Data, nil
	}
	if el.Size == SizeUnknown || el.Size > maxPayloadSize {
		return nil, ErrElementTooLarge
	}

	savedPos := w.reader.Position()
	if err := w.reader.Seek(el.DataOffset()); err != nil {
		return nil, err
	}

	data := make([]byte, el.Size)
	if _, err := io.ReadFull(w.reader.reader, data); err != nil {
		return nil, err
	}
	w.reader.pos += el.Size
	el.Data = data

	if err := w.reader.Seek(savedPos); err != nil {
		return nil, err
	}
	return data, nil
}

const maxPayloadSize = uint64(1)<<31 - 1
