package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/osbuild/dualboot-images/pkg/disk"
)

type PlanFormatter interface {
	Output(w io.Writer, plan disk.PartitionPlan) error
}

func NewPlanFormatter(format string) (PlanFormatter, error) {
	switch format {
	case "", "text":
		return &textPlanFormatter{}, nil
	case "json":
		return &jsonPlanFormatter{}, nil
	case "yaml":
		return &yamlPlanFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported formatter %q", format)
	}
}

type textPlanFormatter struct{}

func (*textPlanFormatter) Output(w io.Writer, plan disk.PartitionPlan) error {
	return plan.WriteTable(w)
}

type jsonPlanFormatter struct{}

func (*jsonPlanFormatter) Output(w io.Writer, plan disk.PartitionPlan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

type yamlPlanFormatter struct{}

func (*yamlPlanFormatter) Output(w io.Writer, plan disk.PartitionPlan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plan); err != nil {
		return err
	}
	return enc.Close()
}
