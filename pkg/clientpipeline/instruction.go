// Package clientpipeline implements the UI-side half of the spine: the
// five-stage Client Instruction Pipeline (spec.md §4.5) that serializes
// conflicting mutations, applies optimistic updates with rollback, and
// deduplicates a mutation's own SSE echo via the Interrupt Table.
//
// It is written as a standalone, embeddable library rather than tied to any
// particular UI toolkit, following the teacher's accept-interfaces /
// return-structs style: callers supply hooks (optimistic apply, rollback,
// commit) and the pipeline drives them through the IF → SCH → EX → RES → WB
// state machine.
package clientpipeline

import "time"

// Stage names an instruction's position in the pipeline (spec.md §3, §4.5).
type Stage string

const (
	StageIF     Stage = "IF"
	StageSCH    Stage = "SCH"
	StageEX     Stage = "EX"
	StageRES    Stage = "RES"
	StageWB     Stage = "WB"
	StageDone   Stage = "done"
	StageFailed Stage = "failed"
)

// Instruction is the client-side record of a single user-initiated mutation
// as it moves through the pipeline (spec.md §3's Instruction Record).
type Instruction struct {
	InstructionID string
	CorrelationID string
	Type          string
	Payload       interface{}

	Stage Stage

	// ResourceKeys identifies the aggregates this instruction will touch;
	// two instructions with intersecting keys are serialized by SCH.
	ResourceKeys []string

	// OptimisticSnapshot is whatever the EX hook captured before applying
	// its predicted post-state, handed back to the rollback hook on
	// failure.
	OptimisticSnapshot interface{}

	Timestamps map[Stage]time.Time
	RetryCount int
	Timeout    time.Duration

	// Err is set once the instruction reaches StageFailed.
	Err error
}

func newInstruction(instructionID, correlationID, typ string, payload interface{}, resourceKeys []string, timeout time.Duration) *Instruction {
	return &Instruction{
		InstructionID: instructionID,
		CorrelationID: correlationID,
		Type:          typ,
		Payload:       payload,
		Stage:         StageIF,
		ResourceKeys:  resourceKeys,
		Timestamps:    map[Stage]time.Time{StageIF: time.Now()},
		Timeout:       timeout,
	}
}

func (i *Instruction) enter(stage Stage) {
	i.Stage = stage
	i.Timestamps[stage] = time.Now()
}

// touches reports whether i and other share at least one resource key —
// the conflict test SCH uses to decide whether to queue an instruction
// behind an in-flight one.
func (i *Instruction) touches(other *Instruction) bool {
	for _, a := range i.ResourceKeys {
		for _, b := range other.ResourceKeys {
			if a == b {
				return true
			}
		}
	}
	return false
}
