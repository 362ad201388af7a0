package layoutfilter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/osbuild/dualboot-images/pkg/disk"
)

func splitPrefixSearchTerm(s string) (string, string) {
	l := strings.SplitN(s, ":", 2)
	if len(l) == 1 {
		return "", l[0]
	}
	return l[0], l[1]
}

// newFilter creates a layout filter based on the given filter terms. Glob
// like patterns (?, *) are supported, see fnmatch(3).
//
// Without a prefix the layout name and the partition labels are searched.
// With a prefix the specified property is filtered, e.g. "label:ROOT-?".
// Terms are combined via AND.
//
// The following prefixes are supported:
// "name:" - the layout name, e.g. chromeos-v1 or brunch*
// "label:" - a partition label, e.g. KERN-C
// "type:" - a partition type, e.g. efi or rootfs
func newFilter(sl ...string) (*filter, error) {
	filter := &filter{
		terms: make([]term, len(sl)),
	}
	for i, s := range sl {
		prefix, searchTerm := splitPrefixSearchTerm(s)
		if !slices.Contains(supportedFilters, prefix) {
			return nil, fmt.Errorf("unsupported filter prefix: %q", prefix)
		}
		gl, err := glob.Compile(searchTerm)
		if err != nil {
			return nil, err
		}
		filter.terms[i].prefix = prefix
		filter.terms[i].pattern = gl
	}
	return filter, nil
}

var supportedFilters = []string{
	"", "name", "label", "type",
}

type term struct {
	prefix  string
	pattern glob.Glob
}

type filter struct {
	terms []term
}

func anyPartition(layout *disk.Layout, match func(disk.PartitionSpec) bool) bool {
	return slices.ContainsFunc(layout.Partitions, match)
}

// Matches returns true if the layout matches all filter terms.
func (fl filter) Matches(layout *disk.Layout) bool {
	m := true
	for _, term := range fl.terms {
		label := func(p disk.PartitionSpec) bool {
			return term.pattern.Match(p.Label)
		}
		switch term.prefix {
		case "":
			m = m && (term.pattern.Match(layout.Name) || anyPartition(layout, label))
		case "name":
			m = m && term.pattern.Match(layout.Name)
		case "label":
			m = m && anyPartition(layout, label)
		case "type":
			m = m && anyPartition(layout, func(p disk.PartitionSpec) bool {
				return term.pattern.Match(p.Type.String())
			})
		}
	}
	return m
}
