package layoutfilter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	// we cannot use "maps" yet, as it needs go1.23
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"

	"github.com/osbuild/dualboot-images/pkg/disk"
)

// OutputFormat contains the valid output formats for formatting layouts
type OutputFormat string

const (
	OutputFormatDefault   OutputFormat = ""
	OutputFormatText      OutputFormat = "text"
	OutputFormatJSON      OutputFormat = "json"
	OutputFormatYAML      OutputFormat = "yaml"
	OutputFormatTextShort OutputFormat = "short"
)

// LayoutsFormatter writes the given layouts to an io.Writer.
type LayoutsFormatter interface {
	Output(io.Writer, []disk.Layout) error
}

var supportedFormatters = map[string]LayoutsFormatter{
	string(OutputFormatDefault):   &textLayoutsFormatter{},
	string(OutputFormatText):      &textLayoutsFormatter{},
	string(OutputFormatJSON):      &jsonLayoutsFormatter{},
	string(OutputFormatYAML):      &yamlLayoutsFormatter{},
	string(OutputFormatTextShort): &textShortLayoutsFormatter{},
}

// SupportedOutputFormats returns a list of supported output formats
func SupportedOutputFormats() []string {
	keys := maps.Keys(supportedFormatters)
	sort.Strings(keys)
	return keys
}

func NewLayoutsFormatter(format OutputFormat) (LayoutsFormatter, error) {
	rs, ok := supportedFormatters[string(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported formatter %q", format)
	}
	return rs, nil
}

type textLayoutsFormatter struct{}

func (*textLayoutsFormatter) Output(w io.Writer, all []disk.Layout) error {
	var errs []error

	for _, layout := range all {
		labels := make([]string, 0, len(layout.Partitions))
		for _, p := range layout.Partitions {
			labels = append(labels, fmt.Sprintf("%d:%s", p.ID, p.Label))
		}
		if _, err := fmt.Fprintf(w, "%s (version %d): %s\n", layout.Name, layout.Version, strings.Join(labels, " ")); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type textShortLayoutsFormatter struct{}

func (*textShortLayoutsFormatter) Output(w io.Writer, all []disk.Layout) error {
	var errs []error

	for _, layout := range all {
		if _, err := fmt.Fprintln(w, layout.Name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type jsonLayoutsFormatter struct{}

func (*jsonLayoutsFormatter) Output(w io.Writer, all []disk.Layout) error {
	enc := json.NewEncoder(w)
	return enc.Encode(all)
}

type yamlLayoutsFormatter struct{}

func (*yamlLayoutsFormatter) Output(w io.Writer, all []disk.Layout) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(all); err != nil {
		return err
	}
	return enc.Close()
}
