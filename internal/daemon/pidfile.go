package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// PIDFile manages a PID file with file locking.
//
// PIDFile is not safe for concurrent use. Callers must ensure that
// Create and Release are not called concurrently on the same instance.
type PIDFile struct {
	path string
	file *os.File
}

// NewPIDFile creates a new PIDFile manager for the given path
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the PID file location
func (p *PIDFile) Path() string {
	return p.path
}

// Create creates and locks the PID file, writing the current process's PID.
// Returns ErrPIDFileLocked if another process holds the lock.
func (p *PIDFile) Create() error {
	f, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("opening PID file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid, rerr := ReadPID(p.path); rerr == nil {
				return fmt.Errorf("%w (pid %d)", ErrPIDFileLocked, pid)
			}
			return ErrPIDFileLocked
		}
		return fmt.Errorf("locking PID file: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		p.releaseAndClose(f)
		return fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := f.Seek(0, 0); err != nil {
		p.releaseAndClose(f)
		return fmt.Errorf("seeking PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		p.releaseAndClose(f)
		return fmt.Errorf("writing PID: %w", err)
	}

	if err := f.Sync(); err != nil {
		p.releaseAndClose(f)
		return fmt.Errorf("syncing PID file: %w", err)
	}

	p.file = f
	return nil
}

// Release unlocks and removes the PID file
func (p *PIDFile) Release() error {
	if p.file == nil {
		return nil
	}

	// Remove before unlocking so a waiting instance never sees our PID
	err := os.Remove(p.path)

	_ = unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	_ = p.file.Close()
	p.file = nil

	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file: %w", err)
	}
	return nil
}

// releaseAndClose unlocks and closes the file without removing it.
func (p *PIDFile) releaseAndClose(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}

// ReadPID reads the PID from a PID file
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing PID: %w", err)
	}

	return pid, nil
}

// ProcessExists checks if a process with the given PID exists
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 checks existence. EPERM means it exists but belongs to someone else.
	err := unix.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, unix.EPERM)
}

// IsLocked checks if the PID file at the given path is currently locked
func IsLocked(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return errors.Is(err, unix.EWOULDBLOCK)
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false
}
