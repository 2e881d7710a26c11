package sequence

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"intentflow/pkg/store"
	"intentflow/pkg/types"
)

// StoreKey is the persisted-store entry the active sequence lives under
const StoreKey = "active_sequence"

// Controller drives a sequence to completion: it owns the run loop, persists
// a snapshot after every state transition and can resume an interrupted
// sequence from exactly where it left off. At most one run is active per
// controller; steps never execute concurrently.
type Controller struct {
	store    store.Store
	env      *Env
	logger   *zap.Logger
	onUpdate func(*Sequence)

	mu      sync.Mutex
	running bool
	seq     *Sequence
}

// NewController creates a controller over a persisted store and an execution
// environment.
func NewController(st store.Store, env *Env, logger *zap.Logger) *Controller {
	return &Controller{
		store:  st,
		env:    env,
		logger: logger.Named("controller"),
	}
}

// SetOnUpdate registers an observer called with a snapshot after every
// persisted transition.
func (c *Controller) SetOnUpdate(fn func(*Sequence)) {
	c.onUpdate = fn
}

// Sequence returns a snapshot of the current working sequence, or nil
func (c *Controller) Sequence() *Sequence {
	c.mu.Lock()
	seq := c.seq
	c.mu.Unlock()

	if seq == nil {
		return nil
	}
	snapshot, err := seq.Snapshot()
	if err != nil {
		return nil
	}
	return snapshot
}

// Running reports whether a run is active
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start builds a new sequence from the intent, persists it and runs it. It is
// a no-op when a run is already active.
func (c *Controller) Start(ctx context.Context, intent *types.Intent) error {
	if !c.acquire() {
		c.logger.Warn("Start ignored, a run is already active")
		return nil
	}
	defer c.release()

	seq, err := Build(ctx, intent, c.env)
	if err != nil {
		return fmt.Errorf("failed to build sequence: %w", err)
	}

	c.mu.Lock()
	c.seq = seq
	c.mu.Unlock()

	c.logger.Info("Sequence built",
		zap.String("sequence_id", seq.ID),
		zap.Int("steps", len(seq.Steps)))

	if err := c.persist(seq); err != nil {
		return err
	}

	return c.runLoop(ctx, seq)
}

// Resume loads the last persisted sequence and runs it from wherever Next()
// points. A step that previously failed is re-queued; a step left mid-flight
// re-polls its existing transaction or task reference instead of
// re-submitting. No-op when a run is active or nothing is persisted.
func (c *Controller) Resume(ctx context.Context) error {
	if !c.acquire() {
		c.logger.Warn("Resume ignored, a run is already active")
		return nil
	}
	defer c.release()

	data, found, err := c.store.Get(StoreKey)
	if err != nil {
		return fmt.Errorf("failed to load persisted sequence: %w", err)
	}
	if !found {
		c.logger.Warn("Resume ignored, no persisted sequence")
		return nil
	}

	seq, err := FromJSON(data)
	if err != nil {
		return fmt.Errorf("failed to revive persisted sequence: %w", err)
	}

	c.requeueFailed(seq)

	c.mu.Lock()
	c.seq = seq
	c.mu.Unlock()

	c.logger.Info("Sequence resumed", zap.String("sequence_id", seq.ID))

	// Persist again so observers of the store see the revived copy
	if err := c.persist(seq); err != nil {
		return err
	}

	return c.runLoop(ctx, seq)
}

// Reset clears the in-memory sequence and the persisted entry. It refuses to
// touch an in-flight run.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("cannot reset while a run is active")
	}
	c.seq = nil
	c.mu.Unlock()

	if err := c.store.Clear(StoreKey); err != nil {
		return fmt.Errorf("failed to clear persisted sequence: %w", err)
	}

	c.logger.Info("Sequence cleared")
	return nil
}

// requeueFailed resets the first failed step back to pending with cleared
// references, giving a halted sequence a re-entry path.
func (c *Controller) requeueFailed(seq *Sequence) {
	for _, step := range seq.Steps {
		base := step.Base()
		if base.StepStatus == StatusFailed {
			c.logger.Info("Re-queueing failed step",
				zap.String("step_id", base.StepID),
				zap.String("kind", string(base.StepKind)))
			base.StepStatus = StatusPending
			base.TxRef = ""
			base.TaskRef = ""
			base.Error = ""
			return
		}
	}
}

// runLoop executes steps one at a time, in order, persisting after every
// transition. A failed step halts the loop; failure surfaces only through the
// persisted step statuses, never as a returned error.
func (c *Controller) runLoop(ctx context.Context, seq *Sequence) error {
	for {
		step := seq.Next()
		if step == nil {
			if seq.IsComplete() {
				c.logger.Info("Sequence complete", zap.String("sequence_id", seq.ID))
			} else {
				c.logger.Info("Sequence halted", zap.String("sequence_id", seq.ID))
			}
			return nil
		}

		base := step.Base()
		c.logger.Info("Executing step",
			zap.String("step_id", base.StepID),
			zap.String("kind", string(base.StepKind)),
			zap.Int64("chain_id", base.ChainID),
			zap.String("status", string(base.StepStatus)))

		// A step revived mid-flight keeps its status; only fresh steps move
		// to waiting_for_user.
		if base.StepStatus == StatusPending {
			base.StepStatus = StatusWaitingForUser
		}
		if err := c.persist(seq); err != nil {
			return err
		}

		if err := step.Run(ctx, c.env); err != nil {
			base.StepStatus = StatusFailed
			base.Error = err.Error()
			c.logger.Error("Step failed, halting sequence",
				zap.String("step_id", base.StepID),
				zap.String("kind", string(base.StepKind)),
				zap.Error(err))
			if perr := c.persist(seq); perr != nil {
				return perr
			}
			return nil
		}

		if err := c.persist(seq); err != nil {
			return err
		}
	}
}

// persist writes a reference-distinct snapshot and notifies observers
func (c *Controller) persist(seq *Sequence) error {
	snapshot, err := seq.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot sequence: %w", err)
	}

	data, err := snapshot.ToJSON()
	if err != nil {
		return err
	}

	if err := c.store.Set(StoreKey, data); err != nil {
		return fmt.Errorf("failed to persist sequence: %w", err)
	}

	if c.onUpdate != nil {
		c.onUpdate(snapshot)
	}

	return nil
}

func (c *Controller) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}
