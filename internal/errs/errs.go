// Package errs collects the sentinel errors that cross package
// boundaries in the deje core. Call sites wrap these with fmt.Errorf's
// %w so errors.Is keeps working after the wrap.
package errs

import "errors"

var (
	// ErrPermissionDenied — local write/read attempted without handler approval.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidAction — handler's event_test rejected a proposed action.
	ErrInvalidAction = errors.New("invalid action")

	// ErrBadSignatureFormat — signature blob has no 0x00 separator, or the
	// expiry half doesn't parse as a timestamp.
	ErrBadSignatureFormat = errors.New("bad signature format")

	// ErrExpiredSignature — signature's embedded expiry has passed.
	ErrExpiredSignature = errors.New("expired signature")

	// ErrBadSignature — signature doesn't verify under the claimed identity.
	ErrBadSignature = errors.New("bad signature")

	// ErrDoubleSigning — QuorumSpace detected a conflicting concurrent sign.
	ErrDoubleSigning = errors.New("double signing")

	// ErrUnknownQuorum — inbound message referenced a content-hash with no live Quorum.
	ErrUnknownQuorum = errors.New("unknown quorum")

	// ErrMalformedMessage — inbound message not a JSON object, or missing "type".
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownMessageType — "type" field names no known handler.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrNonParticipantSource — info-bearing response arrived from outside the participant set.
	ErrNonParticipantSource = errors.New("non-participant source")

	// ErrBlockVerificationFailed — a catch-up block's signatures don't
	// verify or don't reach threshold.
	ErrBlockVerificationFailed = errors.New("block verification failed")

	// ErrTraversal — CLI variable-store path miss.
	ErrTraversal = errors.New("traversal error")

	// ErrUnsupported — a handler hook the policy doesn't implement.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrResourceNotFound — Document.GetResource found nothing at the path.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrUnknownProperty — Resource.SetProperty given a name that isn't one of the four known fields.
	ErrUnknownProperty = errors.New("unknown resource property")
)
