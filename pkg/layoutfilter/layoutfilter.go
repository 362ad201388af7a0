// Package layoutfilter searches the available partition layouts.
package layoutfilter

import (
	"fmt"

	"github.com/osbuild/dualboot-images/pkg/disk"
)

// LayoutSource provides the layouts to search.
type LayoutSource interface {
	LayoutNames() []string
	GetLayout(name string) (disk.Layout, error)
}

type builtinLayouts struct{}

func (builtinLayouts) LayoutNames() []string {
	return disk.LayoutNames()
}

func (builtinLayouts) GetLayout(name string) (disk.Layout, error) {
	return disk.GetLayout(name)
}

// Builtin is the source of the layouts compiled into pkg/disk.
var Builtin LayoutSource = builtinLayouts{}

// LayoutFilter filters the layouts of a source.
type LayoutFilter struct {
	source LayoutSource
}

func New(source LayoutSource) (*LayoutFilter, error) {
	if source == nil {
		return nil, fmt.Errorf("cannot create LayoutFilter without a layout source")
	}
	return &LayoutFilter{source: source}, nil
}

// Filter returns the layouts matching all search terms in the order of
// the source. See newFilter for the term syntax.
func (lf *LayoutFilter) Filter(searchTerms ...string) ([]disk.Layout, error) {
	filter, err := newFilter(searchTerms...)
	if err != nil {
		return nil, err
	}

	var res []disk.Layout
	for _, name := range lf.source.LayoutNames() {
		layout, err := lf.source.GetLayout(name)
		if err != nil {
			return nil, err
		}
		if filter.Matches(&layout) {
			res = append(res, layout)
		}
	}
	return res, nil
}
