// ABOUTME: Typed request and result bodies carried inside message envelopes
// ABOUTME: One pair per operation; encoded as JSON into Message.Body

package message

// PutFileRequest asks a pillar to fetch and store a file.
type PutFileRequest struct {
	FileAddress string `json:"file_address"`
	FileSize    int64  `json:"file_size"`
	Checksum    string `json:"checksum,omitempty"`
}

// GetFileRequest asks a pillar to upload a file to FileAddress.
type GetFileRequest struct {
	FileAddress string `json:"file_address"`
}

// DeleteFileRequest asks a pillar to delete a file. ExistingChecksum guards
// against deleting a different version than the caller expects.
type DeleteFileRequest struct {
	ExistingChecksum string `json:"existing_checksum"`
}

// ReplaceFileRequest asks a pillar to replace a file with a new version.
type ReplaceFileRequest struct {
	ExistingChecksum string `json:"existing_checksum"`
	NewChecksum      string `json:"new_checksum"`
	FileAddress      string `json:"file_address"`
	FileSize         int64  `json:"file_size"`
}

// GetChecksumsRequest asks for checksums of FileID (or all files when empty).
type GetChecksumsRequest struct {
	Algorithm string `json:"algorithm"`
	Salt      string `json:"salt,omitempty"`
}

// GetFileIDsRequest asks for the files a pillar holds.
type GetFileIDsRequest struct{}

// GetStatusRequest asks a pillar for its status.
type GetStatusRequest struct{}

// FileResult is returned by pillars after storing or replacing a file.
type FileResult struct {
	Checksum string `json:"checksum,omitempty"`
}

// ChecksumEntry is a single file checksum.
type ChecksumEntry struct {
	FileID   string `json:"file_id"`
	Checksum string `json:"checksum"`
}

// ChecksumsResult lists checksums computed by a pillar.
type ChecksumsResult struct {
	Algorithm string          `json:"algorithm"`
	Entries   []ChecksumEntry `json:"entries"`
}

// FileIDsResult lists the files held by a pillar.
type FileIDsResult struct {
	FileIDs []string `json:"file_ids"`
}

// StatusResult describes a pillar's current status.
type StatusResult struct {
	StatusCode string `json:"status_code"`
	Info       string `json:"info,omitempty"`
}
