package hostcheck

import (
	"os"

	"golang.org/x/sys/unix"
)

// Geteuid is a mockable version of unix.Geteuid
var Geteuid = unix.Geteuid

// Stat is a mockable version of os.Stat
var Stat = os.Stat
