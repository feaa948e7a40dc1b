// Package operation provides the per-operation policies for the
// conversation engine.
//
// Each constructor returns a value implementing conversation.Operation:
//
//   - PutFile: store a file on every pillar, verifying returned checksums
//   - GetFile: fetch a file from the fastest pillar, or a named one
//   - DeleteFile: delete a file from every pillar
//   - ReplaceFile: replace a file on every pillar, verifying the new checksum
//   - GetChecksums: collect checksums from every pillar
//   - GetFileIDs: list the files every pillar holds
//   - GetStatus: query every pillar's status
//
// A checksum mismatch marks that pillar as failed; the conversation
// still waits for the others before reporting its verdict.
package operation
