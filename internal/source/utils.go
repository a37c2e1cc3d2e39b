package source

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeCRLF заменяет все \r\n на \n, не трогая одиночные \r.
// Возвращает новый слайс и флаг: были ли замены (true, если хотя бы одна).
func normalizeCRLF(content []byte) ([]byte, bool) {
	if !slices.Contains(content, '\r') {
		return content, false
	}

	out := make([]byte, 0, len(content))
	changed := false

	i := 0
	for i < len(content) {
		if content[i] == '\r' && i+1 < len(content) && content[i+1] == '\n' {
			out = append(out, '\n')
			i += 2
			changed = true
		} else {
			out = append(out, content[i])
			i++
		}
	}
	return out, changed
}

func removeBOM(content []byte) ([]byte, bool) {
	if len(content) < 3 {
		return content, false
	}

	if content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		return content[3:], true
	}

	return content, false
}

// Normalize strips a UTF-8 BOM and folds CRLF line endings.
func Normalize(content []byte) (out []byte, hadBOM, hadCRLF bool) {
	out, hadBOM = removeBOM(content)
	out, hadCRLF = normalizeCRLF(out)
	return out, hadBOM, hadCRLF
}

func buildLineIndex(content []byte) []uint32 {
	out := make([]uint32, 0, len(content)/32+1)
	for i, b := range content {
		if b == '\n' {
			out = append(out, uint32(i)) //nolint:gosec // text length is checked in NewText
		}
	}
	return out
}

// toLineCol maps a byte offset to a 1-based position. lineIdx holds the
// offsets of every '\n'; the newline itself belongs to the line it ends.
func toLineCol(lineIdx []uint32, off uint32) LineCol {
	// количество переводов строк строго до off = номер строки (0-based)
	line := sort.Search(len(lineIdx), func(i int) bool { return lineIdx[i] >= off })

	var startOff uint32
	if line > 0 {
		startOff = lineIdx[line-1] + 1
	}
	return LineCol{Line: uint32(line + 1), Col: off - startOff + 1} //nolint:gosec // bounded by lineIdx length
}

func normalizePath(p string) string {
	// единый вид в кроссплатформенных дифах
	return filepath.ToSlash(filepath.Clean(p))
}

// CanonicalPath returns the absolute, cleaned, slash separated NFC form
// of p. Two paths naming the same file map to the same key.
func CanonicalPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", p, err)
	}
	return norm.NFC.String(normalizePath(abs)), nil
}

// SamePath compares two canonical paths, ignoring case where the host
// file system does.
func SamePath(a, b string) bool {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// NativePath converts a canonical path back to the host separator.
func NativePath(p string) string {
	return filepath.FromSlash(p)
}
