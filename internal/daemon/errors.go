package daemon

import (
	"errors"
	"fmt"

	"github.com/charliek/minerd/internal/domain"
)

var (
	// ErrStateNotFound is returned when no state file exists
	ErrStateNotFound = errors.New("state file not found")
	// ErrPIDFileLocked is returned when the PID file is locked by another process
	ErrPIDFileLocked = fmt.Errorf("%w: PID file is locked by another process", domain.ErrAlreadyRunning)
)
