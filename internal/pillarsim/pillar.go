// ABOUTME: Simulated pillar that answers collection operations from an in-memory file table
// ABOUTME: Identifies, reports progress and sends final responses over any bus transport

package pillarsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/message"
)

const sendTimeout = 10 * time.Second

var (
	// ErrMissingID is returned when a pillar is configured without an ID.
	ErrMissingID = errors.New("pillar id is required")
	// ErrMissingDestination is returned without a collection destination.
	ErrMissingDestination = errors.New("collection destination is required")
)

// Config describes a simulated pillar.
type Config struct {
	ID           string
	CollectionID string
	// Destination is the collection topic identify requests are broadcast on.
	Destination string
	// Queue is the pillar's own destination. Defaults to "pillar-<ID>".
	Queue string
	// Delay is applied before every response.
	Delay time.Duration
	// TimeToDeliver is reported in identify responses for GetFile.
	TimeToDeliver time.Duration
	// Silent drops every request without answering.
	Silent bool
	// FailWith, when set, is the response code for every operation request.
	FailWith message.ResponseCode
	// CorruptChecksums makes the pillar report checksums that never match.
	CorruptChecksums bool
}

// Pillar is an in-memory contributor.
type Pillar struct {
	cfg       Config
	transport bus.Transport
	logger    *slog.Logger
	files     *fileTable
	silent    atomic.Bool

	mu      sync.Mutex
	closed  bool
	unsubs  []func()
	wg      sync.WaitGroup
	done    chan struct{}
	handled atomic.Int64
}

// New creates a pillar. Call Start to subscribe it to the transport.
func New(cfg Config, transport bus.Transport, logger *slog.Logger) (*Pillar, error) {
	if cfg.ID == "" {
		return nil, ErrMissingID
	}
	if cfg.Destination == "" {
		return nil, ErrMissingDestination
	}
	if cfg.Queue == "" {
		cfg.Queue = "pillar-" + cfg.ID
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pillar{
		cfg:       cfg,
		transport: transport,
		logger:    logger.With("component", "pillar", "pillar_id", cfg.ID),
		files:     newFileTable(),
		done:      make(chan struct{}),
	}
	p.silent.Store(cfg.Silent)
	return p, nil
}

// ID returns the pillar ID.
func (p *Pillar) ID() string { return p.cfg.ID }

// Queue returns the destination the pillar receives requests on.
func (p *Pillar) Queue() string { return p.cfg.Queue }

// SetSilent switches silent mode on or off.
func (p *Pillar) SetSilent(silent bool) { p.silent.Store(silent) }

// Handled returns the number of messages the pillar answered.
func (p *Pillar) Handled() int64 { return p.handled.Load() }

// Seed stores a file without going through a put operation.
func (p *Pillar) Seed(fileID, checksum string, size int64) {
	p.files.put(fileID, storedFile{Checksum: checksum, Size: size})
}

// Checksum returns the stored checksum of fileID.
func (p *Pillar) Checksum(fileID string) (string, bool) {
	f, ok := p.files.get(fileID)
	return f.Checksum, ok
}

// FileIDs lists stored files in order.
func (p *Pillar) FileIDs() []string { return p.files.ids() }

// Start subscribes to the collection destination and the pillar queue.
func (p *Pillar) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.unsubs) > 0 {
		return
	}
	listener := bus.ListenerFunc(p.HandleMessage)
	p.unsubs = append(p.unsubs,
		p.transport.Subscribe(p.cfg.Destination, listener),
		p.transport.Subscribe(p.cfg.Queue, listener),
	)
	p.logger.Info("pillar started", "destination", p.cfg.Destination, "queue", p.cfg.Queue)
}

// Close unsubscribes and waits for in-flight responses.
func (p *Pillar) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	unsubs := p.unsubs
	p.unsubs = nil
	close(p.done)
	p.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	p.wg.Wait()
}

// HandleMessage answers msg on a separate goroutine so a slow response
// never blocks the transport.
func (p *Pillar) HandleMessage(msg *message.Message) {
	if p.cfg.CollectionID != "" && msg.CollectionID != "" && msg.CollectionID != p.cfg.CollectionID {
		return
	}
	if msg.Kind != message.KindIdentifyRequest && msg.Kind != message.KindRequest {
		p.logger.Debug("ignoring message", "message", msg.String())
		return
	}
	if p.silent.Load() {
		p.logger.Debug("silent, dropping message", "message", msg.String())
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.wg.Go(func() {
		if !p.wait() {
			return
		}
		switch msg.Kind {
		case message.KindIdentifyRequest:
			p.identify(msg)
		case message.KindRequest:
			p.perform(msg)
		}
		p.handled.Add(1)
	})
}

// wait applies the configured delay. It returns false if the pillar closed.
func (p *Pillar) wait() bool {
	if p.cfg.Delay <= 0 {
		return true
	}
	select {
	case <-time.After(p.cfg.Delay):
		return true
	case <-p.done:
		return false
	}
}

func (p *Pillar) identify(req *message.Message) {
	resp := message.NewResponse(req, message.KindIdentifyResponse, p.cfg.ID, p.cfg.Queue)
	ok, info := p.canPerform(req)
	if ok {
		resp.ResponseCode = message.IdentificationPositive
		if req.Operation == message.OperationGetFile {
			resp.TimeToDeliver = p.cfg.TimeToDeliver
		}
	} else {
		resp.ResponseCode = message.IdentificationNegative
		resp.ResponseInfo = info
	}
	p.send(resp)
}

// canPerform decides the identify answer.
func (p *Pillar) canPerform(req *message.Message) (bool, string) {
	_, exists := p.files.get(req.FileID)
	switch req.Operation {
	case message.OperationPutFile:
		if exists {
			return false, "file already exists"
		}
	case message.OperationGetFile, message.OperationDeleteFile, message.OperationReplaceFile:
		if !exists {
			return false, "file not found"
		}
	case message.OperationGetChecksums:
		var body message.GetChecksumsRequest
		if err := req.DecodeBody(&body); err == nil && !supportedAlgorithm(body.Algorithm) {
			return false, fmt.Sprintf("algorithm %s not supported", body.Algorithm)
		}
		if req.FileID != "" && !exists {
			return false, "file not found"
		}
	case message.OperationGetFileIDs:
		if req.FileID != "" && !exists {
			return false, "file not found"
		}
	case message.OperationGetStatus:
	default:
		return false, fmt.Sprintf("operation %s not supported", req.Operation)
	}
	return true, ""
}

func (p *Pillar) perform(req *message.Message) {
	if p.cfg.FailWith != "" {
		p.final(req, p.cfg.FailWith, "simulated failure", nil)
		return
	}

	progress := message.NewResponse(req, message.KindProgressResponse, p.cfg.ID, p.cfg.Queue)
	progress.ResponseCode = message.OperationAcceptedProgress
	progress.ResponseInfo = fmt.Sprintf("%s accepted by %s", req.Operation, p.cfg.ID)
	p.send(progress)

	code, info, body := p.execute(req)
	p.final(req, code, info, body)
}

func (p *Pillar) final(req *message.Message, code message.ResponseCode, info string, body any) {
	resp := message.NewResponse(req, message.KindFinalResponse, p.cfg.ID, p.cfg.Queue)
	resp.ResponseCode = code
	resp.ResponseInfo = info
	if err := resp.SetBody(body); err != nil {
		resp.ResponseCode = message.Failure
		resp.ResponseInfo = err.Error()
	}
	p.send(resp)
}

func (p *Pillar) send(resp *message.Message) {
	if resp.To == "" {
		p.logger.Warn("request has no reply destination", "message", resp.String())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := p.transport.Send(ctx, resp); err != nil {
		p.logger.Error("failed to send response",
			"conversation_id", resp.CorrelationID,
			"kind", resp.Kind,
			"error", err,
		)
		return
	}
	p.logger.Debug("sent response",
		"conversation_id", resp.CorrelationID,
		"kind", resp.Kind,
		"response_code", resp.ResponseCode,
	)
}
