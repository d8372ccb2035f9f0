package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks a handshake or acknowledgment wait that ran out of time.
	ErrTimeout = errors.New("protocol: timeout")
	// ErrRejected is returned when the peer answers the handshake with PIN_FAIL
	// (or anything other than PIN_OK).
	ErrRejected = errors.New("protocol: pin rejected")
	// ErrMalformedRecord marks a record with the wrong discriminator or field count.
	ErrMalformedRecord = errors.New("protocol: malformed record")
	// ErrTransferBusy is returned when a transfer is requested while another
	// one is already in flight in the same direction.
	ErrTransferBusy = errors.New("protocol: transfer already in progress")
	// ErrTransferCancelled is returned when the peer answers FILE_START with FILE_CANCEL.
	ErrTransferCancelled = errors.New("protocol: transfer cancelled by peer")
	// ErrAckTimeout is the outbound-transfer flavour of ErrTimeout.
	ErrAckTimeout = fmt.Errorf("%w: no transfer acknowledgment", ErrTimeout)
	// ErrClosed is returned for operations on a session whose connection is gone.
	ErrClosed = errors.New("protocol: session closed")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...))
}
