package dag

import (
	"sort"
)

type NodeID uint32

// Node is one project and the canonical paths it references.
type Node struct {
	Path string
	Refs []string
}

type Index struct {
	PathToID map[string]NodeID
	IDToPath []string
}

// собрать уникальные пути, sort.Strings, раздать ID по порядку
func BuildIndex(nodes []Node) Index {
	uniq := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.Path != "" {
			uniq[n.Path] = struct{}{}
		}
		for _, ref := range n.Refs {
			if ref == "" {
				continue
			}
			uniq[ref] = struct{}{}
		}
	}

	paths := make([]string, 0, len(uniq))
	for path := range uniq {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	pathToID := make(map[string]NodeID, len(paths))
	for i, path := range paths {
		pathToID[path] = NodeID(i) //nolint:gosec // bounded by len(paths)
	}

	return Index{
		PathToID: pathToID,
		IDToPath: paths,
	}
}
