package shell

import (
	"os"

	"golang.org/x/sys/unix"
)

// disableEcho stops the terminal from repeating submitted commands back into
// the session output.
func disableEcho(f *os.File) error {
	fd := int(f.Fd())
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	termios.Lflag &^= unix.ECHO
	return unix.IoctlSetTermios(fd, unix.TCSETS, termios)
}
