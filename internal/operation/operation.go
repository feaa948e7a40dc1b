// ABOUTME: Shared pieces of the per-operation policies run by the conversation engine
// ABOUTME: Body decoding helpers, checksum comparison and the mismatch sentinel

package operation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/2389/pillarclient/internal/message"
)

// ErrChecksumMismatch is returned when a pillar reports a checksum that
// differs from the one the client expects.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// base carries the fields every operation shares.
type base struct {
	opType message.OperationType
	fileID string
}

func (b base) Type() message.OperationType { return b.opType }

func (b base) FileID() string { return b.fileID }

func (b base) IdentifyBody() any { return nil }

// verifyChecksum decodes an optional FileResult and compares it with want.
// A response without a body is accepted when the pillar has nothing to report.
func verifyChecksum(resp *message.Message, want string) (message.FileResult, error) {
	var result message.FileResult
	if err := resp.DecodeBody(&result); err != nil {
		if errors.Is(err, message.ErrEmptyBody) {
			return result, nil
		}
		return result, err
	}
	if want != "" && result.Checksum != "" && !strings.EqualFold(result.Checksum, want) {
		return result, fmt.Errorf("%w: %s reported %s, expected %s", ErrChecksumMismatch, resp.From, result.Checksum, want)
	}
	return result, nil
}

// decodeResult decodes a required result body.
func decodeResult[T any](resp *message.Message) (T, error) {
	var v T
	if err := resp.DecodeBody(&v); err != nil {
		return v, fmt.Errorf("%s result from %s: %w", resp.Operation, resp.From, err)
	}
	return v, nil
}
