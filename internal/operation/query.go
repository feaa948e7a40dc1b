// ABOUTME: Query operations: checksum collection, file listing and pillar status
// ABOUTME: Each fans out to every pillar and decodes the result into the event payload

package operation

import (
	"github.com/2389/pillarclient/internal/conversation"
	"github.com/2389/pillarclient/internal/message"
)

// ChecksumsOptions selects which checksums to collect.
type ChecksumsOptions struct {
	// FileID limits the request to one file; empty asks for all files.
	FileID    string
	Algorithm string
	Salt      string
}

// Checksums collects checksums from all pillars.
type Checksums struct {
	base
	opts ChecksumsOptions
}

// GetChecksums returns the checksum collection operation.
func GetChecksums(opts ChecksumsOptions) *Checksums {
	return &Checksums{base: base{opType: message.OperationGetChecksums, fileID: opts.FileID}, opts: opts}
}

// IdentifyBody lets pillars decline algorithms they do not support.
func (c *Checksums) IdentifyBody() any {
	return c.request()
}

func (c *Checksums) RequestBody(string) any {
	return c.request()
}

func (c *Checksums) request() message.GetChecksumsRequest {
	return message.GetChecksumsRequest{Algorithm: c.opts.Algorithm, Salt: c.opts.Salt}
}

func (c *Checksums) NewSelector(candidates []string) conversation.Selector {
	return conversation.AllContributors(candidates)
}

func (c *Checksums) EvaluateFinal(resp *message.Message) (any, error) {
	return decodeResult[message.ChecksumsResult](resp)
}

// FileIDs lists the files held by all pillars.
type FileIDs struct {
	base
}

// GetFileIDs returns the listing operation. An empty fileID lists every file.
func GetFileIDs(fileID string) *FileIDs {
	return &FileIDs{base: base{opType: message.OperationGetFileIDs, fileID: fileID}}
}

func (f *FileIDs) RequestBody(string) any { return message.GetFileIDsRequest{} }

func (f *FileIDs) NewSelector(candidates []string) conversation.Selector {
	return conversation.AllContributors(candidates)
}

func (f *FileIDs) EvaluateFinal(resp *message.Message) (any, error) {
	return decodeResult[message.FileIDsResult](resp)
}

// Status asks all known pillars for their status.
type Status struct {
	base
}

// GetStatus returns the status operation.
func GetStatus() *Status {
	return &Status{base: base{opType: message.OperationGetStatus}}
}

func (s *Status) RequestBody(string) any { return message.GetStatusRequest{} }

func (s *Status) NewSelector(candidates []string) conversation.Selector {
	return conversation.AllContributors(candidates)
}

func (s *Status) EvaluateFinal(resp *message.Message) (any, error) {
	return decodeResult[message.StatusResult](resp)
}
