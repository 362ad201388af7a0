package gpt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/dualboot-images/internal/testgpt"
	"github.com/osbuild/dualboot-images/pkg/disk"
	"github.com/osbuild/dualboot-images/pkg/gpt"
)

func chromeOSPlan(t *testing.T) (disk.Layout, disk.PartitionPlan) {
	layout, err := disk.GetLayout("chromeos-v1")
	require.NoError(t, err)
	plan, err := layout.Plan(29360128)
	require.NoError(t, err)
	return layout, plan
}

func TestWriterApply(t *testing.T) {
	layout, plan := chromeOSPlan(t)
	svc := testgpt.New()

	err := gpt.NewWriter(svc, layout).Apply(context.Background(), plan, "/tmp/chromeos.img")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create",
		"add:11", "add:6", "add:7", "add:9", "add:10", "add:2",
		"add:4", "add:8", "add:12", "add:5", "add:3", "add:1",
		"attributes:2", "attributes:4", "attributes:6",
		"boot:12",
		"validate",
	}, svc.Calls)

	table := svc.Tables["/tmp/chromeos.img"]
	require.NotNil(t, table)
	assert.Equal(t, gpt.Partition{ID: 12, Start: 4505600, Count: 131072, Type: disk.PART_EFI, Label: "EFI-SYSTEM"}, table.Partitions[12])
	assert.Equal(t, gpt.KernelAttributes{Tries: 15, Priority: 15}, table.Attributes[2])
	assert.Equal(t, gpt.KernelAttributes{Tries: 15, Priority: 0}, table.Attributes[4])
	assert.Equal(t, gpt.KernelAttributes{Tries: 15, Priority: 0}, table.Attributes[6])
	assert.Equal(t, 12, table.BootPartition)
}

func TestWriterApplyWithoutPolicy(t *testing.T) {
	layout, err := disk.GetLayout("brunch-minimal-v1")
	require.NoError(t, err)
	plan, err := layout.Plan(29360128)
	require.NoError(t, err)
	svc := testgpt.New()

	require.NoError(t, gpt.NewWriter(svc, layout).Apply(context.Background(), plan, "/tmp/brunch.img"))
	assert.Equal(t, []string{"create", "add:12", "add:7", "add:3", "add:5", "add:1", "validate"}, svc.Calls)
	assert.Equal(t, []int{1, 3, 5, 7, 12}, svc.IDs("/tmp/brunch.img"))
}

func TestWriterApplyStopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		failOn    string
		directive gpt.Directive
		id        int
		lastCall  string
	}{
		{"create", gpt.DirectiveCreate, 0, "create"},
		{"add:8", gpt.DirectiveAdd, 8, "add:8"},
		{"attributes:4", gpt.DirectiveAttributes, 4, "attributes:4"},
		{"boot:12", gpt.DirectiveBoot, 12, "boot:12"},
		{"validate", gpt.DirectiveValidate, 0, "validate"},
	}

	for _, tc := range tests {
		t.Run(tc.failOn, func(t *testing.T) {
			layout, plan := chromeOSPlan(t)
			svc := testgpt.New()
			failure := errors.New("cgpt exploded")
			svc.FailOn[tc.failOn] = failure

			err := gpt.NewWriter(svc, layout).Apply(context.Background(), plan, "/tmp/chromeos.img")
			require.Error(t, err)
			assert.True(t, errors.Is(err, failure))

			var writeErr *gpt.WriteError
			require.True(t, errors.As(err, &writeErr))
			assert.Equal(t, tc.directive, writeErr.Directive)
			assert.Equal(t, tc.id, writeErr.ID)
			assert.Equal(t, tc.lastCall, svc.Calls[len(svc.Calls)-1])
		})
	}
}

func TestWriteErrorMessage(t *testing.T) {
	err := &gpt.WriteError{Directive: gpt.DirectiveAdd, ID: 12, Err: errors.New("boom")}
	assert.EqualError(t, err, `partition table directive "add" for partition 12 failed: boom`)

	err = &gpt.WriteError{Directive: gpt.DirectiveCreate, Err: errors.New("boom")}
	assert.EqualError(t, err, `partition table directive "create" failed: boom`)
}
