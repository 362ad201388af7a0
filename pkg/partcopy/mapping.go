package partcopy

import (
	"fmt"
	"path/filepath"

	"github.com/osbuild/dualboot-images/pkg/disk"
)

type SourceKind uint64

const (
	SOURCE_SKIP SourceKind = iota
	SOURCE_SAME_PARTITION
	SOURCE_REMAP_PARTITION
	SOURCE_FILE
)

func (k SourceKind) String() string {
	switch k {
	case SOURCE_SKIP:
		return "skip"
	case SOURCE_SAME_PARTITION:
		return "same-partition"
	case SOURCE_REMAP_PARTITION:
		return "remap-partition"
	case SOURCE_FILE:
		return "file"
	default:
		panic(fmt.Sprintf("unknown or unsupported source kind with enum value %d", k))
	}
}

// Source says where the contents of one destination partition come from.
// Partition is set for the two partition kinds, Path for SOURCE_FILE.
type Source struct {
	Kind      SourceKind
	Partition int
	Path      string
}

func SamePartition(id int) Source {
	return Source{Kind: SOURCE_SAME_PARTITION, Partition: id}
}

func RemapPartition(srcID int) Source {
	return Source{Kind: SOURCE_REMAP_PARTITION, Partition: srcID}
}

func FromFile(path string) Source {
	return Source{Kind: SOURCE_FILE, Path: path}
}

func Skip() Source {
	return Source{Kind: SOURCE_SKIP}
}

func (s Source) String() string {
	switch s.Kind {
	case SOURCE_SAME_PARTITION, SOURCE_REMAP_PARTITION:
		return fmt.Sprintf("partition %d", s.Partition)
	case SOURCE_FILE:
		return s.Path
	default:
		return s.Kind.String()
	}
}

// Mapping maps destination partition ids to their source. Ids without an
// entry are skipped.
type Mapping map[int]Source

// MappingFromLayout builds the mapping of a layout's copy table. File
// sources are resolved relative to assetsDir; when secureBoot is false a
// rule's InsecureFile is preferred over File.
func MappingFromLayout(layout disk.Layout, assetsDir string, secureBoot bool) Mapping {
	m := make(Mapping, len(layout.Copy.Rules))
	for _, rule := range layout.Copy.Rules {
		switch {
		case rule.File != "":
			name := rule.File
			if !secureBoot && rule.InsecureFile != "" {
				name = rule.InsecureFile
			}
			m[rule.ID] = FromFile(filepath.Join(assetsDir, name))
		case rule.Partition == rule.ID:
			m[rule.ID] = SamePartition(rule.ID)
		default:
			m[rule.ID] = RemapPartition(rule.Partition)
		}
	}
	return m
}
