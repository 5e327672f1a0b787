// Package process is the runtime facade handed to a component: identity,
// params, unsealed secrets, artifact storage, the task log, and streaming
// I/O against the per-workflow topic.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dramaproject/drama/bus"
	"github.com/dramaproject/drama/datatype"
	"github.com/dramaproject/drama/message"
	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/servo"
	"github.com/dramaproject/drama/storage"
)

// LogFileName is the name the task log is uploaded under. It is always
// preserved remotely, whatever happens to the local scratch directory.
const LogFileName = "log.txt"

// Common process errors.
var (
	// ErrNoInputs is returned when a component polls upstream without
	// declared inputs.
	ErrNoInputs = errors.New("process: tried to poll from upstream, but no input defined")

	// ErrUpstreamInterrupted is returned when an INTERRUPTION signal is
	// observed while polling.
	ErrUpstreamInterrupted = errors.New("process: task killed by upstream interruption signal")
)

// MissingInputsError reports declared inputs whose BLOCKs never arrived
// before every upstream closed its stream.
type MissingInputsError struct {
	Missing []string
}

func (e *MissingInputsError) Error() string {
	return fmt.Sprintf("process: some inputs were declared but are missing: %v", e.Missing)
}

// Options construct a Process.
type Options struct {
	Name   string
	Module string
	// Parent is the workflow id; it doubles as the topic name.
	Parent  string
	Params  map[string]any
	Inputs  map[string]string
	Secrets []model.UnsealedSecret

	Storage storage.Storage
	Bus     bus.Bus
	Logger  *slog.Logger

	// DataDir hosts the task log file until it is uploaded on Close.
	DataDir string
}

// Process is the per-task runtime context.
type Process struct {
	Name    string
	Module  string
	Parent  string
	Params  map[string]any
	Inputs  map[string]string
	Secrets []model.UnsealedSecret
	Storage storage.Storage

	bus    bus.Bus
	logger *slog.Logger

	logMu   sync.Mutex
	logFile *os.File
}

// New builds the process context and prepares its storage area and task
// log.
func New(opts Options) (*Process, error) {
	if _, err := opts.Storage.Setup(); err != nil {
		return nil, fmt.Errorf("process: storage setup: %w", err)
	}

	logFile, err := os.CreateTemp(opts.DataDir, "drama-task-*.log")
	if err != nil {
		return nil, fmt.Errorf("process: create task log: %w", err)
	}

	return &Process{
		Name:    opts.Name,
		Module:  opts.Module,
		Parent:  opts.Parent,
		Params:  opts.Params,
		Inputs:  opts.Inputs,
		Secrets: opts.Secrets,
		Storage: opts.Storage,
		bus:     opts.Bus,
		logger:  opts.Logger.With("task", opts.Name, "workflow", opts.Parent),
		logFile: logFile,
	}, nil
}

// Secret returns the unsealed secret with the given token.
func (p *Process) Secret(token string) (string, bool) {
	for _, s := range p.Secrets {
		if s.Token == token {
			return s.Secret, true
		}
	}
	return "", false
}

// ToDownstream serializes the record under its schema, wraps it in a BLOCK
// envelope keyed "<task>.<record>", and publishes it on the workflow topic.
func (p *Process) ToDownstream(ctx context.Context, record *datatype.Record) (message.Message, error) {
	dict, err := record.Dict()
	if err != nil {
		return message.Message{}, err
	}

	schemaJSON, err := record.Schema().AvroJSON()
	if err != nil {
		return message.Message{}, err
	}

	avroSchema, err := servo.ParseSchema(schemaJSON)
	if err != nil {
		return message.Message{}, err
	}

	data, err := servo.Serialize(dict, avroSchema)
	if err != nil {
		return message.Message{}, err
	}

	key := p.Name + "." + record.Key()
	msg := message.NewBlock(key, data, schemaJSON)

	p.Debug(fmt.Sprintf("Sending %s to downstream", key))
	if err := p.send(ctx, msg, p.Name); err != nil {
		return message.Message{}, err
	}

	return msg, nil
}

// send encodes the envelope and publishes it on the workflow topic under
// the given partition key.
func (p *Process) send(ctx context.Context, msg message.Message, key string) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, p.Parent, key, raw)
}

// PublishSignal publishes a SIGNAL envelope on the workflow topic under the
// given key. Signals keyed by the workflow id address every task.
func (p *Process) PublishSignal(ctx context.Context, signal message.Signal, key string) error {
	return p.send(ctx, message.NewSignal(signal), key)
}

// PollTopic waits for a single raw record on an arbitrary topic, bounded by
// the timeout. Components use it for interactive parameters published via
// the API.
func (p *Process) PollTopic(ctx context.Context, topic string, timeout time.Duration) ([]byte, error) {
	reader, err := p.bus.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	record, err := reader.Next(pollCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("process: no value found in topic %s after %s: %w", topic, timeout, err)
	}
	if err != nil {
		return nil, err
	}
	return record.Value, nil
}

// Close uploads the task log, optionally removes the local scratch
// directory (keeping the log behind as log.txt.old), and emits the task's
// final SIGNAL: POISSON_PILL on a graceful close, INTERRUPTION on a forced
// one. It returns the remote log resource.
func (p *Process) Close(ctx context.Context, forceInterruption, removeLocalDir bool) (storage.Resource, error) {
	if forceInterruption {
		p.Error("Task brutally interrupted")
	} else {
		p.Debug("Task gracefully closed")
	}

	p.logMu.Lock()
	logPath := p.logFile.Name()
	_ = p.logFile.Sync()
	p.logMu.Unlock()

	remoteLog, err := p.Storage.PutFile(logPath, LogFileName)
	if err != nil {
		return storage.Resource{}, fmt.Errorf("process: upload task log: %w", err)
	}

	p.logMu.Lock()
	_ = p.logFile.Close()
	_ = os.Remove(logPath)
	p.logMu.Unlock()

	if removeLocalDir {
		if err := p.Storage.RemoveLocalDir(LogFileName); err != nil {
			return storage.Resource{}, err
		}
	}

	signal := message.SignalStop
	if forceInterruption {
		signal = message.SignalInterruption
	}
	if err := p.PublishSignal(ctx, signal, p.Name); err != nil {
		return storage.Resource{}, err
	}

	return remoteLog, nil
}

// Info logs an INFO line to the task log and the process logger.
func (p *Process) Info(msg string) {
	p.logger.Info(msg)
	p.appendLog("INFO", msg)
}

// Debug logs a DEBUG line to the task log and the process logger.
func (p *Process) Debug(msg string) {
	p.logger.Debug(msg)
	p.appendLog("DEBUG", msg)
}

// Warn logs a WARNING line to the task log and the process logger.
func (p *Process) Warn(msg string) {
	p.logger.Warn(msg)
	p.appendLog("WARNING", msg)
}

// Error logs an ERROR line to the task log and the process logger.
func (p *Process) Error(msg string) {
	p.logger.Error(msg)
	p.appendLog("ERROR", msg)
}

func (p *Process) appendLog(level, msg string) {
	p.logMu.Lock()
	defer p.logMu.Unlock()

	stamp := time.Now().Format("2006-01-02 15:04:05.000000")
	fmt.Fprintf(p.logFile, "[%s] [%s] %s\n", level, stamp, msg)
}
