// ABOUTME: Response codes reported by pillars in identify and operation responses
// ABOUTME: Mirrors the collection protocol's positive, progress and failure codes

package message

// ResponseCode is the outcome a pillar reports in a response.
type ResponseCode string

const (
	IdentificationPositive    ResponseCode = "IDENTIFICATION_POSITIVE"
	IdentificationNegative    ResponseCode = "IDENTIFICATION_NEGATIVE"
	OperationAcceptedProgress ResponseCode = "OPERATION_ACCEPTED_PROGRESS"
	OperationCompleted        ResponseCode = "OPERATION_COMPLETED"

	Failure                     ResponseCode = "FAILURE"
	FileNotFoundFailure         ResponseCode = "FILE_NOT_FOUND_FAILURE"
	DuplicateFileFailure        ResponseCode = "DUPLICATE_FILE_FAILURE"
	ExistingFileChecksumFailure ResponseCode = "EXISTING_FILE_CHECKSUM_FAILURE"
	NewFileChecksumFailure      ResponseCode = "NEW_FILE_CHECKSUM_FAILURE"
	FileTransferFailure         ResponseCode = "FILE_TRANSFER_FAILURE"
	RequestNotUnderstoodFailure ResponseCode = "REQUEST_NOT_UNDERSTOOD_FAILURE"
	RequestNotSupported         ResponseCode = "REQUEST_NOT_SUPPORTED"
)

// IsFailure reports whether the code signals a negative outcome.
func (c ResponseCode) IsFailure() bool {
	switch c {
	case IdentificationPositive, OperationAcceptedProgress, OperationCompleted, "":
		return false
	}
	return true
}
