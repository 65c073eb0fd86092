package pagecache

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// defaultLockTimeout is the safety alarm: how long a page
// lock acquisition will wait before giving up on a holder that may be
// dead. It defends against indefinitely blocking behind a crashed
// process that still holds the advisory lock.
const defaultLockTimeout = 10 * time.Second

// lockPollInterval bounds how long a single non-blocking lock attempt
// sleeps before retrying. The design notes call out that a dedicated
// timed-lock primitive (try-lock loop with sleep) is an acceptable
// substitute for the source's signal-alarm approach; a foreign signal
// interrupting the underlying syscall is retried transparently by the
// EINTR handling below, and only the overall deadline turns into
// [ErrLockTimeout].
const lockPollInterval = 2 * time.Millisecond

// lockPageRange acquires an exclusive advisory byte-range lock on
// [offset, offset+length) of fd, blocking (by polling) until acquired or
// until timeout elapses. The lock is an open-file-description lock, so
// two descriptors opened separately contend even within one process.
func lockPageRange(fd int, offset, length int64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	lk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: 0,
		Start:  offset,
		Len:    length,
	}

	for {
		err := fcntlFlockRetryEINTR(fd, unix.F_OFD_SETLK, &lk)
		if err == nil {
			return nil
		}

		if !isLockContended(err) {
			return fmt.Errorf("%w: %w", ErrLockFailed, err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: after %s", ErrLockTimeout, timeout)
		}

		time.Sleep(lockPollInterval)
	}
}

// unlockPageRange releases the lock taken by lockPageRange.
func unlockPageRange(fd int, offset, length int64) error {
	lk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: 0,
		Start:  offset,
		Len:    length,
	}

	err := fcntlFlockRetryEINTR(fd, unix.F_OFD_SETLK, &lk)
	if err != nil {
		return fmt.Errorf("%w: unlock: %w", ErrLockFailed, err)
	}

	return nil
}

// fcntlFlockRetryEINTR wraps unix.FcntlFlock, retrying on EINTR. A
// blocking syscall interrupted by an unrelated signal (terminal resize,
// child exit, ...) is not a lock failure; it simply needs to be retried.
func fcntlFlockRetryEINTR(fd int, cmd int, lk *unix.Flock_t) error {
	const maxEINTRRetries = 10000

	var err error

	for range maxEINTRRetries {
		err = unix.FcntlFlock(uintptr(fd), cmd, lk)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}

func isLockContended(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EAGAIN)
}
