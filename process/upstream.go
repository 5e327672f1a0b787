package process

import (
	"context"
	"fmt"

	"github.com/dramaproject/drama/bus"
	"github.com/dramaproject/drama/message"
	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/servo"
)

// Upstream iterates the records produced by the task's declared inputs. Use
// it like a scanner:
//
//	up, err := pcs.PollFromUpstream(ctx, true)
//	for up.Next(ctx) {
//		name, payload := up.Record()
//		...
//	}
//	if err := up.Err(); err != nil { ... }
type Upstream struct {
	process    *Process
	reader     bus.Reader
	applyServo bool

	// expectedTasks is the set of upstream task names; polling stops after
	// one POISSON_PILL per member.
	expectedTasks map[string]struct{}

	// remaining is the multiset of declared "<task>.<record>" keys not yet
	// observed.
	remaining []string

	// reversed maps "<task>.<record>" back to the local input name.
	reversed map[string]string

	stops int

	name    string
	payload any
	err     error
	done    bool
}

// PollFromUpstream subscribes to the workflow topic from the earliest
// offset and returns an iterator over (local input name, payload) pairs.
// With applyServo, BLOCK payloads are deserialized under their inline
// schema; otherwise the raw bytes are yielded.
func (p *Process) PollFromUpstream(ctx context.Context, applyServo bool) (*Upstream, error) {
	if len(p.Inputs) == 0 {
		return nil, ErrNoInputs
	}

	expectedTasks := make(map[string]struct{})
	remaining := make([]string, 0, len(p.Inputs))
	reversed := make(map[string]string, len(p.Inputs))

	for local, ref := range p.Inputs {
		task, _, ok := model.SplitInputRef(ref)
		if !ok {
			return nil, fmt.Errorf("process: input %s is not a valid identifier: %s", local, ref)
		}
		expectedTasks[task] = struct{}{}
		remaining = append(remaining, ref)
		reversed[ref] = local
	}

	p.Debug(fmt.Sprintf("Declared input tasks (%d), expected inputs: %v", len(expectedTasks), remaining))

	reader, err := p.bus.Subscribe(ctx, p.Parent)
	if err != nil {
		return nil, err
	}

	return &Upstream{
		process:       p,
		reader:        reader,
		applyServo:    applyServo,
		expectedTasks: expectedTasks,
		remaining:     remaining,
		reversed:      reversed,
	}, nil
}

// Next advances to the following upstream record. It returns false when
// every upstream closed its stream or an error occurred; check Err.
func (u *Upstream) Next(ctx context.Context) bool {
	if u.done {
		return false
	}

	for u.stops < len(u.expectedTasks) {
		record, err := u.reader.Next(ctx)
		if err != nil {
			u.fail(err)
			return false
		}

		// Only records from declared input tasks are handled; records keyed
		// by the workflow id carry control signals addressed to every task.
		if _, expected := u.expectedTasks[record.Key]; !expected && record.Key != u.process.Parent {
			continue
		}

		msg, err := message.Decode(record.Value)
		if err != nil {
			u.fail(err)
			return false
		}

		switch msg.Type {
		case message.TypeSignal:
			switch msg.Signal() {
			case message.SignalInterruption:
				u.process.Warn(fmt.Sprintf("Received interruption signal from task %s", record.Key))
				u.fail(fmt.Errorf("%w (from %s)", ErrUpstreamInterrupted, record.Key))
				return false
			case message.SignalStop:
				u.process.Debug(fmt.Sprintf("Received %s signal from task %s", message.SignalStop, record.Key))
				u.stops++
			default:
				u.fail(fmt.Errorf("process: unrecognized signal %q", msg.Data))
				return false
			}

		case message.TypeBlock:
			u.process.Debug(fmt.Sprintf("Received %s from task %s", msg.Key, record.Key))

			// Producers can publish records this task never declared.
			if _, declared := u.reversed[msg.Key]; !declared {
				u.process.Debug(fmt.Sprintf("Discarding message %s", msg.Key))
				continue
			}

			u.removeRemaining(msg.Key)

			payload := any(msg.Data)
			if u.applyServo {
				schema, err := servo.ParseSchema(msg.Schem)
				if err != nil {
					u.fail(err)
					return false
				}
				decoded, err := servo.Deserialize(msg.Data, schema)
				if err != nil {
					u.fail(err)
					return false
				}
				payload = decoded
			}

			u.name = u.reversed[msg.Key]
			u.payload = payload
			return true
		}
	}

	// Every upstream signalled end of stream; the declared inputs must all
	// have arrived.
	if len(u.remaining) > 0 {
		u.fail(&MissingInputsError{Missing: u.remaining})
		return false
	}

	u.finish()
	return false
}

// Record returns the current (local input name, payload) pair.
func (u *Upstream) Record() (string, any) {
	return u.name, u.payload
}

// Err returns the terminal error, if any.
func (u *Upstream) Err() error { return u.err }

func (u *Upstream) removeRemaining(key string) {
	for i, k := range u.remaining {
		if k == key {
			u.remaining = append(u.remaining[:i], u.remaining[i+1:]...)
			return
		}
	}
}

func (u *Upstream) fail(err error) {
	u.err = err
	u.finish()
}

func (u *Upstream) finish() {
	if !u.done {
		u.done = true
		_ = u.reader.Close()
	}
}

// GetFromUpstream consumes the whole upstream sequence and groups payloads
// by local input name.
func (p *Process) GetFromUpstream(ctx context.Context) (map[string][]any, error) {
	up, err := p.PollFromUpstream(ctx, true)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]any)
	for up.Next(ctx) {
		name, payload := up.Record()
		out[name] = append(out[name], payload)
	}
	if err := up.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
