package matroska

// metadataMap drives the tag-name to metadata-kind translation. A zero
// targetType matches any tag scope; the first matching row wins.
var metadataMap = []struct {
	kind       MetaKind
	name       string
	targetType uint64
}{
	{MetaAlbum, "TITLE", 50},
	{MetaTitle, "TITLE", 0},
	{MetaArtist, "ARTIST", 0},
	{MetaGenre, "GENRE", 0},
	{MetaCopyright, "COPYRIGHT", 0},
	{MetaTrackNumber, "PART_NUMBER", 0},
	{MetaDescription, "DESCRIPTION", 0},
	{MetaDescription, "COMMENT", 0},
	{MetaRating, "RATING", 0},
	{MetaDate, "DATE_RELEASED", 0},
	{MetaDate, "DATE_RELEASE", 0},
	{MetaDate, "DATE_RECORDED", 0},
	{MetaURL, "URL", 0},
	{MetaPublisher, "PUBLISHER", 0},
	{MetaEncodedBy, "ENCODED_BY", 0},
	{MetaTrackTotal, "TOTAL_PARTS", 0},
}

// applySimpleTag routes one tag to the sink, then recurses into its children.
func applySimpleTag(sink MetadataSink, tag *SimpleTag, targetType uint64) {
	if tag.Name != "" && tag.Value != "" {
		matched := false
		for _, row := range metadataMap {
			if tag.Name != row.name {
				continue
			}
			if row.targetType != 0 && targetType != row.targetType {
				continue
			}
			sink.Set(row.kind, tag.Value)
			matched = true
			break
		}
		if !matched {
			sink.AddExtra(tag.Name, tag.Value)
		}
	}

	for i := range tag.Children {
		applySimpleTag(sink, &tag.Children[i], targetType)
	}
}

// InformationCreate publishes the segment title and every parsed tag to the
// metadata sink.
func (s *Segment) InformationCreate(sink MetadataSink) {
	if sink == nil {
		return
	}

	if s.info.Title != "" {
		sink.Set(MetaTitle, s.info.Title)
	}

	for _, tag := range s.tags {
		for i := range tag.SimpleTags {
			applySimpleTag(sink, &tag.SimpleTags[i], tag.Target.TypeValue)
		}
	}
}
