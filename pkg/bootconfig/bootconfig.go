// Package bootconfig generates the GRUB menu entries that boot the
// dual-boot image from a file on the host filesystem.
package bootconfig

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/osbuild/dualboot-images/internal/executil"
)

// PlaceholderUUID is written when the partition UUID of the image cannot
// be determined. The user has to replace it before booting.
const PlaceholderUUID = "CHANGE_ME_UUID"

// Suffix is appended to the image path to name the generated file.
const Suffix = ".grub.txt"

// PartUUID is a mockable lookup of the PARTUUID of path with blkid.
var PartUUID = func(ctx context.Context, path string) (string, error) {
	return executil.Run(ctx, "blkid", "-s", "PARTUUID", "-o", "value", path)
}

var grubTemplate = template.Must(template.New("grub").Parse(`menuentry "Brunch" --class "brunch" {
    img_path="{{.ImagePath}}"
    img_uuid="{{.ImageUUID}}"
    search --no-floppy --set=root --file "$img_path"
    loopback loop "$img_path"
    source (loop,{{.EFIPartition}})/efi/boot/settings.cfg
    if [ -z $verbose ] -o [ $verbose -eq 0 ]; then
        linux (loop,{{.KernelPartition}})$kernel boot=local noresume noswap loglevel=7 options=$options chromeos_bootsplash=$chromeos_bootsplash $cmdline_params \
            cros_secure cros_debug img_uuid="$img_uuid" img_path="$img_path" \
            console= vt.global_cursor_default=0 brunch_bootsplash=$brunch_bootsplash quiet
    else
        linux (loop,{{.KernelPartition}})$kernel boot=local noresume noswap loglevel=7 options=$options chromeos_bootsplash=$chromeos_bootsplash $cmdline_params \
            cros_secure cros_debug img_uuid="$img_uuid" img_path="$img_path"
    fi
    initrd (loop,{{.KernelPartition}})/lib/firmware/amd-ucode.img (loop,{{.KernelPartition}})/lib/firmware/intel-ucode.img (loop,{{.KernelPartition}})/initramfs.img
}

menuentry "Brunch settings" --class "brunch-settings" {
    img_path="{{.ImagePath}}"
    img_uuid="{{.ImageUUID}}"
    search --no-floppy --set=root --file "$img_path"
    loopback loop "$img_path"
    source (loop,{{.EFIPartition}})/efi/boot/settings.cfg
    linux (loop,{{.KernelPartition}})/kernel boot=local noresume noswap loglevel=7 options= chromeos_bootsplash= edit_brunch_config=1 \
        cros_secure cros_debug img_uuid="$img_uuid" img_path="$img_path"
    initrd (loop,{{.KernelPartition}})/lib/firmware/amd-ucode.img (loop,{{.KernelPartition}})/lib/firmware/intel-ucode.img (loop,{{.KernelPartition}})/initramfs.img
}
`))

// Entry holds the values substituted into the menu entries.
type Entry struct {
	ImagePath string
	ImageUUID string
	// EFIPartition holds settings.cfg, KernelPartition the kernel and
	// initramfs.
	EFIPartition    int
	KernelPartition int
}

func Render(w io.Writer, e Entry) error {
	return grubTemplate.Execute(w, e)
}

// Emitter writes <image>.grub.txt next to the image.
type Emitter struct {
	Fs              afero.Fs
	EFIPartition    int
	KernelPartition int
}

func NewEmitter(fs afero.Fs) *Emitter {
	return &Emitter{
		Fs:              fs,
		EFIPartition:    12,
		KernelPartition: 7,
	}
}

// imageUUID returns the PARTUUID reported by blkid, or the placeholder if
// blkid fails or does not print a UUID.
func imageUUID(ctx context.Context, imagePath string) string {
	out, err := PartUUID(ctx, imagePath)
	if err != nil {
		logrus.Debugf("cannot determine PARTUUID of %s: %v", imagePath, err)
		return PlaceholderUUID
	}
	id, err := uuid.Parse(out)
	if err != nil {
		logrus.Debugf("ignoring PARTUUID %q of %s: %v", out, imagePath, err)
		return PlaceholderUUID
	}
	return id.String()
}

// Emit renders the menu entries for imagePath and returns the path of the
// written file.
func (e *Emitter) Emit(ctx context.Context, imagePath string) (string, error) {
	entry := Entry{
		ImagePath:       imagePath,
		ImageUUID:       imageUUID(ctx, imagePath),
		EFIPartition:    e.EFIPartition,
		KernelPartition: e.KernelPartition,
	}
	if entry.ImageUUID == PlaceholderUUID {
		logrus.Warnf("cannot determine the partition UUID of %s, replace %s in the boot configuration", imagePath, PlaceholderUUID)
	}

	path := imagePath + Suffix
	f, err := e.Fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("cannot write boot configuration: %w", err)
	}
	if err := Render(f, entry); err != nil {
		f.Close()
		return "", fmt.Errorf("cannot render boot configuration: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("cannot write boot configuration: %w", err)
	}
	logrus.Infof("boot configuration written to %s", path)
	return path, nil
}
