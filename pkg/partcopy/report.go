package partcopy

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/osbuild/dualboot-images/pkg/datasizes"
)

type Status uint64

const (
	STATUS_COPIED Status = iota
	STATUS_SKIPPED
	STATUS_FAILED
)

func (s Status) String() string {
	switch s {
	case STATUS_COPIED:
		return "copied"
	case STATUS_SKIPPED:
		return "skipped"
	case STATUS_FAILED:
		return "failed"
	default:
		panic(fmt.Sprintf("unknown or unsupported copy status with enum value %d", s))
	}
}

type SkipReason string

const (
	ReasonReserved     SkipReason = "reserved"
	ReasonFileNotFound SkipReason = "file-not-found"
)

// Outcome is the result of copying one destination partition. Bytes is
// only set for copied partitions, Reason only for skipped ones and Err
// only for failed ones.
type Outcome struct {
	ID     int
	Status Status
	Source string
	Bytes  uint64
	Reason SkipReason
	Err    error
}

// Report lists one outcome per destination id, in ascending id order.
type Report struct {
	Outcomes []Outcome
	// ReleaseErrors are failures to detach the media after copying. They
	// do not make the copy fail.
	ReleaseErrors []error
}

func (r *Report) filter(status Status) []Outcome {
	var res []Outcome
	for _, o := range r.Outcomes {
		if o.Status == status {
			res = append(res, o)
		}
	}
	return res
}

func (r *Report) Copied() []Outcome {
	return r.filter(STATUS_COPIED)
}

func (r *Report) Skipped() []Outcome {
	return r.filter(STATUS_SKIPPED)
}

func (r *Report) Failed() []Outcome {
	return r.filter(STATUS_FAILED)
}

// Find returns the outcome for id, or nil.
func (r *Report) Find(id int) *Outcome {
	for idx := range r.Outcomes {
		if r.Outcomes[idx].ID == id {
			return &r.Outcomes[idx]
		}
	}
	return nil
}

// Err returns a *CopyError if any partition failed to copy, nil
// otherwise. Skipped partitions are not errors.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &CopyError{Failed: failed}
}

// Summary writes a table of all outcomes to w.
func (r *Report) Summary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSTATUS\tSOURCE\tSIZE\tDETAIL\n")
	for _, o := range r.Outcomes {
		var size, detail string
		switch o.Status {
		case STATUS_COPIED:
			size = datasizes.Format(o.Bytes)
		case STATUS_SKIPPED:
			detail = string(o.Reason)
		case STATUS_FAILED:
			detail = o.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", o.ID, o.Status, o.Source, size, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, err := range r.ReleaseErrors {
		if _, err := fmt.Fprintf(w, "warning: %s\n", err); err != nil {
			return err
		}
	}
	return nil
}

// CopyError aggregates the partitions that failed to copy.
type CopyError struct {
	Failed []Outcome
}

func (e *CopyError) Error() string {
	msgs := make([]string, 0, len(e.Failed))
	for _, o := range e.Failed {
		msgs = append(msgs, fmt.Sprintf("partition %d: %s", o.ID, o.Err))
	}
	return fmt.Sprintf("%d partition(s) failed to copy: %s", len(e.Failed), strings.Join(msgs, "; "))
}

func (e *CopyError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, o := range e.Failed {
		errs = append(errs, o.Err)
	}
	return errs
}
