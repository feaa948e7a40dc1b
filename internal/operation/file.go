// ABOUTME: File operations: store, fetch, delete and replace a single file
// ABOUTME: Store, delete and replace fan out to every pillar; fetch picks one

package operation

import (
	"github.com/2389/pillarclient/internal/conversation"
	"github.com/2389/pillarclient/internal/message"
)

// PutFileOptions describes a file to store on every pillar.
type PutFileOptions struct {
	FileID      string
	FileAddress string
	FileSize    int64
	// Checksum is compared with the checksum each pillar reports back.
	Checksum string
}

// Put stores a file on all pillars.
type Put struct {
	base
	opts PutFileOptions
}

// PutFile returns the store operation.
func PutFile(opts PutFileOptions) *Put {
	return &Put{base: base{opType: message.OperationPutFile, fileID: opts.FileID}, opts: opts}
}

func (p *Put) RequestBody(string) any {
	return message.PutFileRequest{
		FileAddress: p.opts.FileAddress,
		FileSize:    p.opts.FileSize,
		Checksum:    p.opts.Checksum,
	}
}

func (p *Put) NewSelector(candidates []string) conversation.Selector {
	return conversation.AllContributors(candidates)
}

func (p *Put) EvaluateFinal(resp *message.Message) (any, error) {
	return verifyChecksum(resp, p.opts.Checksum)
}

// GetFileOptions describes a file to fetch.
type GetFileOptions struct {
	FileID      string
	FileAddress string
	// Contributor forces a specific pillar. Empty picks the fastest one.
	Contributor string
}

// Get fetches a file from a single pillar.
type Get struct {
	base
	opts GetFileOptions
}

// GetFile returns the fetch operation.
func GetFile(opts GetFileOptions) *Get {
	return &Get{base: base{opType: message.OperationGetFile, fileID: opts.FileID}, opts: opts}
}

func (g *Get) RequestBody(string) any {
	return message.GetFileRequest{FileAddress: g.opts.FileAddress}
}

func (g *Get) NewSelector(candidates []string) conversation.Selector {
	if g.opts.Contributor != "" {
		return conversation.SpecificContributor(candidates, g.opts.Contributor)
	}
	return conversation.FastestContributor(candidates)
}

func (g *Get) EvaluateFinal(resp *message.Message) (any, error) {
	return verifyChecksum(resp, "")
}

// DeleteFileOptions describes a file to delete from every pillar.
type DeleteFileOptions struct {
	FileID           string
	ExistingChecksum string
}

// Delete removes a file from all pillars.
type Delete struct {
	base
	opts DeleteFileOptions
}

// DeleteFile returns the delete operation.
func DeleteFile(opts DeleteFileOptions) *Delete {
	return &Delete{base: base{opType: message.OperationDeleteFile, fileID: opts.FileID}, opts: opts}
}

func (d *Delete) RequestBody(string) any {
	return message.DeleteFileRequest{ExistingChecksum: d.opts.ExistingChecksum}
}

func (d *Delete) NewSelector(candidates []string) conversation.Selector {
	return conversation.AllContributors(candidates)
}

func (d *Delete) EvaluateFinal(resp *message.Message) (any, error) {
	return verifyChecksum(resp, "")
}

// ReplaceFileOptions describes a new version of a file.
type ReplaceFileOptions struct {
	FileID           string
	ExistingChecksum string
	NewChecksum      string
	FileAddress      string
	FileSize         int64
}

// Replace swaps a file for a new version on all pillars.
type Replace struct {
	base
	opts ReplaceFileOptions
}

// ReplaceFile returns the replace operation.
func ReplaceFile(opts ReplaceFileOptions) *Replace {
	return &Replace{base: base{opType: message.OperationReplaceFile, fileID: opts.FileID}, opts: opts}
}

func (r *Replace) RequestBody(string) any {
	return message.ReplaceFileRequest{
		ExistingChecksum: r.opts.ExistingChecksum,
		NewChecksum:      r.opts.NewChecksum,
		FileAddress:      r.opts.FileAddress,
		FileSize:         r.opts.FileSize,
	}
}

func (r *Replace) NewSelector(candidates []string) conversation.Selector {
	return conversation.AllContributors(candidates)
}

func (r *Replace) EvaluateFinal(resp *message.Message) (any, error) {
	return verifyChecksum(resp, r.opts.NewChecksum)
}
