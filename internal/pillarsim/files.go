// ABOUTME: Pillar file table and the per-operation request handling
// ABOUTME: Checksums are simulated; file contents are never transferred

package pillarsim

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
	"strings"
	"sync"

	"github.com/2389/pillarclient/internal/message"
)

type storedFile struct {
	Checksum string
	Size     int64
	Address  string
}

type fileTable struct {
	mu    sync.RWMutex
	files map[string]storedFile
}

func newFileTable() *fileTable {
	return &fileTable{files: make(map[string]storedFile)}
}

func (t *fileTable) get(id string) (storedFile, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.files[id]
	return f, ok
}

func (t *fileTable) put(id string, f storedFile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[id] = f
}

// putIfAbsent stores f and reports whether id was free.
func (t *fileTable) putIfAbsent(id string, f storedFile) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[id]; ok {
		return false
	}
	t.files[id] = f
	return true
}

func (t *fileTable) delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, id)
}

func (t *fileTable) ids() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.files))
	for id := range t.files {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// execute performs req against the file table and returns the final
// response code, info and body.
func (p *Pillar) execute(req *message.Message) (message.ResponseCode, string, any) {
	switch req.Operation {
	case message.OperationPutFile:
		return p.putFile(req)
	case message.OperationGetFile:
		return p.getFile(req)
	case message.OperationDeleteFile:
		return p.deleteFile(req)
	case message.OperationReplaceFile:
		return p.replaceFile(req)
	case message.OperationGetChecksums:
		return p.checksums(req)
	case message.OperationGetFileIDs:
		return p.fileIDs(req)
	case message.OperationGetStatus:
		return message.OperationCompleted, "", message.StatusResult{
			StatusCode: "OK",
			Info:       fmt.Sprintf("%d file(s) stored", len(p.files.ids())),
		}
	}
	return message.RequestNotSupported, fmt.Sprintf("operation %s not supported", req.Operation), nil
}

func (p *Pillar) putFile(req *message.Message) (message.ResponseCode, string, any) {
	var body message.PutFileRequest
	if err := req.DecodeBody(&body); err != nil {
		return message.RequestNotUnderstoodFailure, err.Error(), nil
	}
	checksum := body.Checksum
	if checksum == "" {
		checksum = syntheticChecksum(req.FileID, body.FileAddress, body.FileSize)
	}
	if !p.files.putIfAbsent(req.FileID, storedFile{Checksum: checksum, Size: body.FileSize, Address: body.FileAddress}) {
		return message.DuplicateFileFailure, "file already exists", nil
	}
	return message.OperationCompleted, "stored", message.FileResult{Checksum: p.report(checksum)}
}

func (p *Pillar) getFile(req *message.Message) (message.ResponseCode, string, any) {
	f, ok := p.files.get(req.FileID)
	if !ok {
		return message.FileNotFoundFailure, "file not found", nil
	}
	var body message.GetFileRequest
	if err := req.DecodeBody(&body); err != nil {
		return message.RequestNotUnderstoodFailure, err.Error(), nil
	}
	return message.OperationCompleted, "delivered to " + body.FileAddress, message.FileResult{Checksum: p.report(f.Checksum)}
}

func (p *Pillar) deleteFile(req *message.Message) (message.ResponseCode, string, any) {
	var body message.DeleteFileRequest
	if err := req.DecodeBody(&body); err != nil {
		return message.RequestNotUnderstoodFailure, err.Error(), nil
	}
	f, ok := p.files.get(req.FileID)
	if !ok {
		return message.FileNotFoundFailure, "file not found", nil
	}
	if body.ExistingChecksum != "" && !strings.EqualFold(body.ExistingChecksum, f.Checksum) {
		return message.ExistingFileChecksumFailure, "existing checksum does not match", nil
	}
	p.files.delete(req.FileID)
	return message.OperationCompleted, "deleted", nil
}

func (p *Pillar) replaceFile(req *message.Message) (message.ResponseCode, string, any) {
	var body message.ReplaceFileRequest
	if err := req.DecodeBody(&body); err != nil {
		return message.RequestNotUnderstoodFailure, err.Error(), nil
	}
	f, ok := p.files.get(req.FileID)
	if !ok {
		return message.FileNotFoundFailure, "file not found", nil
	}
	if body.ExistingChecksum != "" && !strings.EqualFold(body.ExistingChecksum, f.Checksum) {
		return message.ExistingFileChecksumFailure, "existing checksum does not match", nil
	}
	checksum := body.NewChecksum
	if checksum == "" {
		checksum = syntheticChecksum(req.FileID, body.FileAddress, body.FileSize)
	}
	p.files.put(req.FileID, storedFile{Checksum: checksum, Size: body.FileSize, Address: body.FileAddress})
	return message.OperationCompleted, "replaced", message.FileResult{Checksum: p.report(checksum)}
}

func (p *Pillar) checksums(req *message.Message) (message.ResponseCode, string, any) {
	var body message.GetChecksumsRequest
	if err := req.DecodeBody(&body); err != nil {
		return message.RequestNotUnderstoodFailure, err.Error(), nil
	}
	if !supportedAlgorithm(body.Algorithm) {
		return message.RequestNotSupported, fmt.Sprintf("algorithm %s not supported", body.Algorithm), nil
	}

	ids := p.files.ids()
	if req.FileID != "" {
		if _, ok := p.files.get(req.FileID); !ok {
			return message.FileNotFoundFailure, "file not found", nil
		}
		ids = []string{req.FileID}
	}

	result := message.ChecksumsResult{Algorithm: normalizeAlgorithm(body.Algorithm), Entries: []message.ChecksumEntry{}}
	for _, id := range ids {
		f, ok := p.files.get(id)
		if !ok {
			continue
		}
		result.Entries = append(result.Entries, message.ChecksumEntry{
			FileID:   id,
			Checksum: p.report(derivedChecksum(body.Algorithm, body.Salt, f.Checksum)),
		})
	}
	return message.OperationCompleted, "", result
}

func (p *Pillar) fileIDs(req *message.Message) (message.ResponseCode, string, any) {
	if req.FileID != "" {
		if _, ok := p.files.get(req.FileID); !ok {
			return message.FileNotFoundFailure, "file not found", nil
		}
		return message.OperationCompleted, "", message.FileIDsResult{FileIDs: []string{req.FileID}}
	}
	return message.OperationCompleted, "", message.FileIDsResult{FileIDs: p.files.ids()}
}

// report applies CorruptChecksums to a checksum about to be sent.
func (p *Pillar) report(checksum string) string {
	if p.cfg.CorruptChecksums {
		return "corrupt-" + checksum
	}
	return checksum
}

func normalizeAlgorithm(algorithm string) string {
	if algorithm == "" {
		return "SHA256"
	}
	return strings.ToUpper(algorithm)
}

func supportedAlgorithm(algorithm string) bool {
	switch normalizeAlgorithm(algorithm) {
	case "SHA256", "MD5":
		return true
	}
	return false
}

// derivedChecksum returns the stored SHA256 checksum as is; other
// algorithms and salts get a stable value computed from it.
func derivedChecksum(algorithm, salt, stored string) string {
	algorithm = normalizeAlgorithm(algorithm)
	if algorithm == "SHA256" && salt == "" {
		return stored
	}
	newHash := sha256.New
	if algorithm == "MD5" {
		newHash = md5.New
	}
	var h hash.Hash
	if salt != "" {
		h = hmac.New(newHash, []byte(salt))
	} else {
		h = newHash()
	}
	h.Write([]byte(stored))
	return hex.EncodeToString(h.Sum(nil))
}

func syntheticChecksum(fileID, address string, size int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%d", fileID, address, size))
	return hex.EncodeToString(sum[:])
}
