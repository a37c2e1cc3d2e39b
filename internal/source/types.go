package source

// FileID identifies a document inside one project graph.
type FileID uint32 // 0 = нет файла

// NoFile marks spans that are not tied to a document.
const NoFile FileID = 0

// LineCol represents a human-readable position in a source file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based
}

// Less orders positions line first.
func (lc LineCol) Less(other LineCol) bool {
	if lc.Line != other.Line {
		return lc.Line < other.Line
	}
	return lc.Col < other.Col
}
