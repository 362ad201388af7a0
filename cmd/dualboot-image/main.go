package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/osbuild/dualboot-images/internal/hostcheck"
	"github.com/osbuild/dualboot-images/internal/prometheus"
	"github.com/osbuild/dualboot-images/pkg/datasizes"
	"github.com/osbuild/dualboot-images/pkg/disk"
	"github.com/osbuild/dualboot-images/pkg/experimentalflags"
	"github.com/osbuild/dualboot-images/pkg/image"
	"github.com/osbuild/dualboot-images/pkg/layoutfilter"
	"github.com/osbuild/dualboot-images/pkg/partcopy"
	"github.com/osbuild/dualboot-images/pkg/progress"
)

var (
	osStdout io.Writer = os.Stdout
	osStderr io.Writer = os.Stderr
)

// runHostChecks and buildImage are replaced in tests, a real build needs
// root and loop devices.
var runHostChecks = hostcheck.Run

var buildImage = func(ctx context.Context, img *image.DualBoot) (*image.BuildResult, error) {
	return img.Build(ctx)
}

// shortFlags maps the single dash spellings of the legacy command line
// to their long flags.
var shortFlags = map[string]string{
	"-src": "--source",
	"-dst": "--destination",
}

func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		name, value, hasValue := strings.Cut(arg, "=")
		if long, ok := shortFlags[name]; ok {
			if hasValue {
				arg = long + "=" + value
			} else {
				arg = long
			}
		}
		out = append(out, arg)
	}
	return out
}

// parseSize accepts a plain number of GiB or a size with units, e.g.
// "32GiB" or "500 MiB".
func parseSize(s string) (uint64, error) {
	if n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
		if n == 0 || n > math.MaxUint64/datasizes.GiB {
			return 0, fmt.Errorf("invalid size %q", s)
		}
		return n * datasizes.GiB, nil
	}
	size, err := datasizes.Parse(s)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return size, nil
}

// sizeValue is a pflag.Value for image sizes, see parseSize.
type sizeValue uint64

var _ pflag.Value = (*sizeValue)(nil)

func (s *sizeValue) Set(v string) error {
	size, err := parseSize(v)
	if err != nil {
		return err
	}
	*s = sizeValue(size)
	return nil
}

func (s *sizeValue) String() string {
	return datasizes.Format(uint64(*s))
}

func (s *sizeValue) Type() string {
	return "size"
}

// loadConfig merges the config file with the flags that were set on the
// command line.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	flags := cmd.Flags()
	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	config, err := LoadConfig(path, flags.Changed("config"))
	if err != nil {
		return nil, err
	}

	if flags.Changed("size") {
		size, ok := flags.Lookup("size").Value.(*sizeValue)
		if !ok {
			return nil, fmt.Errorf("unexpected type %T of --size", flags.Lookup("size").Value)
		}
		config.Size = datasizes.Size(*size)
	}
	for name, dst := range map[string]*string{
		"layout":      &config.Layout,
		"layout-file": &config.LayoutFile,
		"backend":     &config.Backend,
		"assets-dir":  &config.AssetsDir,
	} {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("no-secure-boot") != nil && flags.Changed("no-secure-boot") {
		insecure, err := flags.GetBool("no-secure-boot")
		if err != nil {
			return nil, err
		}
		config.SecureBoot = !insecure
	}
	config.Backend = backendOverride(config.Backend)
	return config, nil
}

func setupLogging(cmd *cobra.Command, args []string) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}
	logrus.SetOutput(osStderr)
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
	return nil
}

func printResults(w io.Writer, results hostcheck.SortedResults, all bool) {
	for _, res := range results {
		switch {
		case res.Error == nil:
			if all {
				fmt.Fprintf(w, "%s %s: passed\n", hostcheck.IconFor(nil), res.Meta.Name)
			}
		case hostcheck.IsSkip(res.Error) && !all:
		default:
			fmt.Fprintf(w, "%s %s: %s\n", hostcheck.IconFor(res.Error), res.Meta.Name, res.Error)
		}
	}
}

func cmdBuild(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	source, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}
	destination, err := cmd.Flags().GetString("destination")
	if err != nil {
		return err
	}
	skipChecks, err := cmd.Flags().GetBool("skip-checks")
	if err != nil {
		return err
	}
	noProgress, err := cmd.Flags().GetBool("no-progress")
	if err != nil {
		return err
	}
	metricsFile, err := cmd.Flags().GetString("metrics-file")
	if err != nil {
		return err
	}

	layout, err := config.layout()
	if err != nil {
		return err
	}
	svc, err := newService(config.Backend)
	if err != nil {
		return err
	}

	if !skipChecks {
		results := runHostChecks(&hostcheck.Config{Backend: config.Backend, AssetsDir: config.AssetsDir})
		printResults(osStderr, results, false)
		if err := results.Err(); err != nil {
			return fmt.Errorf("host checks failed:\n%w", err)
		}
	}

	img := image.NewDualBoot(source, destination)
	img.Size = config.Size.Uint64()
	img.Layout = layout
	img.AssetsDir = config.AssetsDir
	img.SecureBoot = config.SecureBoot
	img.Service = svc
	img.Summary = osStdout
	if !noProgress && !experimentalflags.Bool(experimentalflags.OptNoProgress) {
		img.Progress = progress.NewBarReporter(osStderr)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	started := time.Now()
	result, err := buildImage(ctx, img)
	if metricsFile != "" {
		writeMetrics(metricsFile, layout.Name, result, started, err)
	}
	if result != nil && result.BootConfigPath != "" {
		fmt.Fprintf(osStdout, "boot configuration written to %s\n", result.BootConfigPath)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(osStdout, "image %s created with layout %s\n", destination, layout.Name)
	return nil
}

func writeMetrics(path, layout string, result *image.BuildResult, started time.Time, buildErr error) {
	var report *partcopy.Report
	if result != nil {
		report = result.Report
	}
	m := prometheus.NewBuildMetrics(layout)
	m.Observe(report, started, time.Now(), buildErr)
	if err := m.WriteTextfile(path); err != nil {
		logrus.Warnf("cannot write metrics: %v", err)
	}
}

func cmdPlan(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	fmter, err := NewPlanFormatter(format)
	if err != nil {
		return err
	}
	layout, err := config.layout()
	if err != nil {
		return err
	}

	img := image.NewDualBoot("", "")
	img.Layout = layout
	plan, err := img.PlanFor(config.Size.Uint64())
	if err != nil {
		return err
	}
	return fmter.Output(osStdout, plan)
}

func cmdLayouts(cmd *cobra.Command, args []string) error {
	filter, err := cmd.Flags().GetStringArray("filter")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	fmter, err := layoutfilter.NewLayoutsFormatter(layoutfilter.OutputFormat(format))
	if err != nil {
		return err
	}
	lf, err := layoutfilter.New(layoutfilter.Builtin)
	if err != nil {
		return err
	}
	layouts, err := lf.Filter(filter...)
	if err != nil {
		return err
	}
	return fmter.Output(osStdout, layouts)
}

func cmdCheck(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	results := runHostChecks(&hostcheck.Config{Backend: config.Backend, AssetsDir: config.AssetsDir})
	printResults(osStdout, results, true)
	return results.Err()
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "Recovery image to copy the partitions from")
	cmd.Flags().String("destination", "", "Image file or block device to create")
	cmd.Flags().String("assets-dir", "", "Directory with rootc.img, efi_secure.img and efi_legacy.img")
	cmd.Flags().Bool("no-secure-boot", false, "Use efi_legacy.img for the EFI partition")
	cmd.Flags().Bool("skip-checks", false, "Do not check the host for required tools")
	cmd.Flags().Bool("no-progress", false, "Do not show progress bars")
	cmd.Flags().String("metrics-file", "", "Write build metrics for the node_exporter textfile collector")
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "dualboot-image --source <recovery.bin> --destination <image>",
		Short: "Build a dual-boot ChromeOS disk image from a recovery image",
		Long: `Build a dual-boot ChromeOS disk image from a recovery image

The destination gets a fresh ChromeOS partition layout, the partitions are
filled from the recovery image and the assets directory, and a GRUB menu
entry to boot the image from disk is written next to it.`,
		RunE:              cmdBuild,
		PersistentPreRunE: setupLogging,
		SilenceUsage:      true,
		Args:              cobra.NoArgs,
	}
	size := sizeValue(image.DefaultSize)
	rootCmd.PersistentFlags().VarP(&size, "size", "s", "Size of the image in GiB or with units, e.g. 32GiB")
	rootCmd.PersistentFlags().String("layout", disk.DefaultLayoutName, "Built-in partition layout")
	rootCmd.PersistentFlags().String("layout-file", "", "Load the partition layout from a YAML or TOML file")
	rootCmd.PersistentFlags().String("backend", backendCgpt, "Partition table backend (cgpt, diskfs)")
	rootCmd.PersistentFlags().String("config", DefaultConfigPath, "Config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Show debug output")
	addBuildFlags(rootCmd)

	buildCmd := &cobra.Command{
		Use:          "build --source <recovery.bin> --destination <image>",
		Short:        "Build the image, same as running without a command",
		RunE:         cmdBuild,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	addBuildFlags(buildCmd)
	rootCmd.AddCommand(buildCmd)
	for _, cmd := range []*cobra.Command{rootCmd, buildCmd} {
		if err := cmd.MarkFlagRequired("source"); err != nil {
			return err
		}
		if err := cmd.MarkFlagRequired("destination"); err != nil {
			return err
		}
	}

	planCmd := &cobra.Command{
		Use:          "plan",
		Short:        "Print the partition layout for the given size without writing anything",
		RunE:         cmdPlan,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	planCmd.Flags().String("format", "text", "Output format (text, json, yaml)")
	rootCmd.AddCommand(planCmd)

	layoutsCmd := &cobra.Command{
		Use:          "layouts",
		Short:        "List the built-in partition layouts, use --filter to limit further",
		RunE:         cmdLayouts,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	layoutsCmd.Flags().StringArray("filter", nil, "Filter layouts by name, label or type, e.g. label:KERN-?")
	layoutsCmd.Flags().String("format", "", fmt.Sprintf("Output format (%s)", strings.Join(layoutfilter.SupportedOutputFormats()[1:], ", ")))
	rootCmd.AddCommand(layoutsCmd)

	checkCmd := &cobra.Command{
		Use:          "check",
		Short:        "Check that the host can build images",
		RunE:         cmdCheck,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	checkCmd.Flags().String("assets-dir", "", "Directory with the image assets")
	rootCmd.AddCommand(checkCmd)

	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))
	rootCmd.SetOut(osStdout)
	rootCmd.SetErr(osStderr)
	return rootCmd.Execute()
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("error: %s", err)
	}
}
