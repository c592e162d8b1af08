package format

import (
	"os"

	"github.com/acarl005/stripansi"
	units "github.com/docker/go-units"
)

const (
	FileUserReadWrite os.FileMode = 0600
	FilePublicRead    os.FileMode = 0644
	DirUserGroupRead  os.FileMode = 0750
)

// SanitizeOutput strips terminal escape sequences from remote command output
// so it can be logged safely.
func SanitizeOutput(s string) string {
	return stripansi.Strip(s)
}

// HumanSize renders a byte count like "1.5kB".
func HumanSize(size int) string {
	return units.HumanSize(float64(size))
}
