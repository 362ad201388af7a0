package hostcheck

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/dualboot-images/internal/executil"
)

// LoopControl is the device used by losetup to allocate loop devices.
const LoopControl = "/dev/loop-control"

func init() {
	RegisterCheck(Metadata{Name: "Root Check", ShortName: "root"}, rootCheck)
	RegisterCheck(Metadata{Name: "Loop Device Check", ShortName: "loop"}, loopCheck)
	RegisterCheck(Metadata{Name: "Required Tools Check", ShortName: "tools"}, requiredToolsCheck)
	RegisterCheck(Metadata{Name: "Optional Tools Check", ShortName: "optional-tools"}, optionalToolsCheck)
	RegisterCheck(Metadata{Name: "Partition Table Tool Check", ShortName: "cgpt"}, cgptCheck)
	RegisterCheck(Metadata{Name: "Assets Check", ShortName: "assets"}, assetsCheck)
}

func rootCheck(meta *Metadata, config *Config) error {
	if uid := Geteuid(); uid != 0 {
		return Fail("loop devices can only be set up by root, running as uid", uid)
	}
	return Pass()
}

func loopCheck(meta *Metadata, config *Config) error {
	fi, err := Stat(LoopControl)
	if err != nil {
		return Fail("cannot access", LoopControl+":", err)
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return Fail(LoopControl, "is not a device")
	}
	return Pass()
}

func requiredToolsCheck(meta *Metadata, config *Config) error {
	var missing []any
	for _, tool := range []string{"losetup"} {
		path, err := executil.LookPath(tool)
		if err != nil {
			missing = append(missing, tool)
			continue
		}
		logrus.Debugf("found %s at %s", tool, path)
	}
	if len(missing) > 0 {
		return Fail(append([]any{"missing required tools:"}, missing...)...)
	}
	return Pass()
}

// optionalToolsCheck covers the tools whose absence only degrades the
// result: without partprobe the kernel may miss the new partitions, without
// blkid the boot configuration carries a placeholder UUID.
func optionalToolsCheck(meta *Metadata, config *Config) error {
	var missing []any
	for _, tool := range []string{"partprobe", "blkid"} {
		if _, err := executil.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return Warning(append([]any{"missing optional tools:"}, missing...)...)
	}
	return Pass()
}

func cgptCheck(meta *Metadata, config *Config) error {
	if config == nil || (config.Backend != "" && config.Backend != "cgpt") {
		return Skip("cgpt backend not selected")
	}
	if _, err := executil.LookPath("cgpt"); err != nil {
		return Fail("cgpt not found, install vboot-utils or select the diskfs backend")
	}
	return Pass()
}

func assetsCheck(meta *Metadata, config *Config) error {
	if config == nil || config.AssetsDir == "" {
		return Skip("no assets directory")
	}
	fi, err := Stat(config.AssetsDir)
	if err != nil || !fi.IsDir() {
		return Warning("assets directory", config.AssetsDir, "not found, partitions copied from files will be left empty")
	}
	return Pass()
}
