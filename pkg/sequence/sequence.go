package sequence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrUnknownStepKind is returned when a persisted step cannot be revived
var ErrUnknownStepKind = errors.New("unknown step kind")

// stepConstructors revives the concrete variant for a persisted kind
var stepConstructors = map[Kind]func() Step{
	KindApprove:         func() Step { return &ApproveStep{} },
	KindPermitSignature: func() Step { return &PermitSignatureStep{} },
	KindRouteLeg:        func() Step { return &RouteLegStep{} },
	KindDeposit:         func() Step { return &DepositStep{} },
	KindWithdraw:        func() Step { return &WithdrawStep{} },
	KindPayFees:         func() Step { return &PayFeesStep{} },
}

// Sequence is an ordered list of steps derived from one intent. The persisted
// snapshot is the durable copy; the in-memory instance is the working copy.
type Sequence struct {
	ID    string `json:"id"`
	Steps []Step `json:"steps"`
}

// New creates a sequence over the given steps
func New(steps []Step) *Sequence {
	return &Sequence{
		ID:    uuid.New().String(),
		Steps: steps,
	}
}

// Next returns the first step that still wants execution, or nil when none
// does. Failed steps are not selected; a halted sequence stays halted until
// the failed step is re-queued.
func (s *Sequence) Next() Step {
	for _, step := range s.Steps {
		if step.Base().StepStatus.Incomplete() {
			return step
		}
	}
	return nil
}

// IsComplete reports whether every step confirmed
func (s *Sequence) IsComplete() bool {
	for _, step := range s.Steps {
		if step.Base().StepStatus != StatusConfirmed {
			return false
		}
	}
	return true
}

// StepPatch is a partial update applied to one step
type StepPatch struct {
	Status  *Status
	TxRef   *string
	TaskRef *string
	Error   *string
}

// Patch applies a partial update to the step with the given id
func (s *Sequence) Patch(id string, patch StepPatch) error {
	for _, step := range s.Steps {
		base := step.Base()
		if base.StepID != id {
			continue
		}
		if patch.Status != nil {
			base.StepStatus = *patch.Status
		}
		if patch.TxRef != nil {
			base.TxRef = *patch.TxRef
		}
		if patch.TaskRef != nil {
			base.TaskRef = *patch.TaskRef
		}
		if patch.Error != nil {
			base.Error = *patch.Error
		}
		return nil
	}
	return fmt.Errorf("step %q not found in sequence %s", id, s.ID)
}

// Find returns the step with the given id, or nil
func (s *Sequence) Find(id string) Step {
	for _, step := range s.Steps {
		if step.Base().StepID == id {
			return step
		}
	}
	return nil
}

// UnmarshalJSON revives the concrete step variants by dispatching on kind
func (s *Sequence) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    string            `json:"id"`
		Steps []json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal sequence: %w", err)
	}

	steps := make([]Step, 0, len(raw.Steps))
	for _, rawStep := range raw.Steps {
		var head struct {
			Kind Kind `json:"kind"`
		}
		if err := json.Unmarshal(rawStep, &head); err != nil {
			return fmt.Errorf("failed to read step kind: %w", err)
		}

		construct, ok := stepConstructors[head.Kind]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStepKind, head.Kind)
		}

		step := construct()
		if err := json.Unmarshal(rawStep, step); err != nil {
			return fmt.Errorf("failed to unmarshal %s step: %w", head.Kind, err)
		}
		steps = append(steps, step)
	}

	s.ID = raw.ID
	s.Steps = steps
	return nil
}

// FromJSON revives a persisted sequence
func FromJSON(data []byte) (*Sequence, error) {
	var seq Sequence
	if err := json.Unmarshal(data, &seq); err != nil {
		return nil, err
	}
	return &seq, nil
}

// ToJSON serializes the sequence into its persisted form
func (s *Sequence) ToJSON() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sequence: %w", err)
	}
	return data, nil
}

// Snapshot returns a structurally-equal but reference-distinct copy. Stores
// built on shallow change detection would otherwise miss in-place mutations.
func (s *Sequence) Snapshot() (*Sequence, error) {
	data, err := s.ToJSON()
	if err != nil {
		return nil, err
	}
	return FromJSON(data)
}
