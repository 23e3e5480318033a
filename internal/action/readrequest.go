package action

import (
	"context"
	"math/rand"

	"deje/internal/canon"
)

// ReadRequest is a subscribe action: once its read quorum completes,
// the requester is added to the document's subscriber set and starts
// receiving broadcast traffic. Grounded on
// original_source/deje/read.py.
type ReadRequest struct {
	Author string
	Unique uint32

	done bool
}

// NewReadRequest creates a ReadRequest for author with a random
// dedup nonce, matching Python's randint(0, 2**32) default.
func NewReadRequest(author string) *ReadRequest {
	return &ReadRequest{Author: author, Unique: rand.Uint32()}
}

// NewReadRequestUnique reconstructs a ReadRequest with an explicit
// nonce — used by the accepting replica, which must hash identically
// to the proposer's request to find the same Quorum by content hash.
func NewReadRequestUnique(author string, unique uint32) *ReadRequest {
	return &ReadRequest{Author: author, Unique: unique}
}

func (r *ReadRequest) Type() string          { return "get_version" }
func (r *ReadRequest) AuthorName() string    { return r.Author }
func (r *ReadRequest) ThresholdType() string { return "read" }

// ProposedVersion is always nil: read requests never age out as the
// document's version advances.
func (r *ReadRequest) ProposedVersion() *uint64 { return nil }

func (r *ReadRequest) HashContent() ([]byte, error) {
	return canon.Marshal(struct {
		Type   string `json:"type"`
		Author string `json:"author"`
		Unique uint32 `json:"unique"`
	}{r.Type(), r.Author, r.Unique})
}

func (r *ReadRequest) Serialize() map[string]any {
	return map[string]any{
		"type":   r.Type(),
		"author": r.Author,
		"unique": r.Unique,
	}
}

// IsDone reports whether the request has already been granted.
func (r *ReadRequest) IsDone() bool { return r.done }

// Test is always true: subscribe requests carry no content to validate.
func (r *ReadRequest) Test(context.Context) (bool, error) { return true, nil }

// Enact adds the requester to host's subscriber set.
func (r *ReadRequest) Enact(host Host) error {
	if r.done {
		return nil
	}
	host.AddSubscriber(r.Author)
	r.done = true
	return nil
}
