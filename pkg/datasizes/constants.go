package datasizes

const (
	KiloByte = 1000        // kB
	KibiByte = 1024        // KiB
	MegaByte = 1000 * 1000 // MB
	MebiByte = 1024 * 1024 // MiB
	GigaByte = 1000 * 1000 * 1000
	GibiByte = 1024 * 1024 * 1024
	TeraByte = 1000 * 1000 * 1000 * 1000
	TebiByte = 1024 * 1024 * 1024 * 1024

	// shorthands
	KiB = KibiByte
	MiB = MebiByte
	GiB = GibiByte
	TiB = TebiByte
)
