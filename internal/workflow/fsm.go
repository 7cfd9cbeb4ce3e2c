package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// Workflow states.
const (
	StateInit             = "init"
	StateLoggedIn         = "logged_in"
	StatePlantOpened      = "plant_opened"
	StateEvidenceCaptured = "evidence_captured"
	StateAnalyzed         = "analyzed"
	StateMonthlyExtracted = "monthly_extracted"
	StatePlantClosed      = "plant_closed"
	StateDone             = "done"
	StateFailed           = "failed"
)

// Workflow events.
const (
	EventLogin          = "login"
	EventOpenPlant      = "open_plant"
	EventCapture        = "capture"
	EventAnalyze        = "analyze"
	EventExtractMonthly = "extract_monthly"
	EventClosePlant     = "close_plant"
	EventFinish         = "finish"
	EventFail           = "fail"
)

var plantStates = []string{StatePlantOpened, StateEvidenceCaptured, StateAnalyzed, StateMonthlyExtracted}

func newMachine(onEnter func(ctx context.Context, e *fsm.Event)) *fsm.FSM {
	live := append([]string{StateInit, StateLoggedIn, StatePlantClosed}, plantStates...)
	events := fsm.Events{
		{Name: EventLogin, Src: []string{StateInit}, Dst: StateLoggedIn},
		{Name: EventOpenPlant, Src: []string{StateLoggedIn, StatePlantClosed}, Dst: StatePlantOpened},
		{Name: EventCapture, Src: []string{StatePlantOpened}, Dst: StateEvidenceCaptured},
		{Name: EventAnalyze, Src: []string{StateEvidenceCaptured}, Dst: StateAnalyzed},
		{Name: EventExtractMonthly, Src: []string{StateAnalyzed}, Dst: StateMonthlyExtracted},
		// A plant that never opened is closed straight from the hub state.
		{Name: EventClosePlant, Src: append([]string{StateLoggedIn, StatePlantClosed}, plantStates...), Dst: StatePlantClosed},
		{Name: EventFinish, Src: []string{StateLoggedIn, StatePlantClosed}, Dst: StateDone},
		{Name: EventFail, Src: live, Dst: StateFailed},
	}
	callbacks := fsm.Callbacks{
		"enter_state": onEnter,
	}
	return fsm.NewFSM(StateInit, events, callbacks)
}

// fire triggers event, treating a self transition as success. Transitions are
// bookkeeping and still run once ctx is cancelled.
func fire(ctx context.Context, m *fsm.FSM, event string) error {
	err := m.Event(context.WithoutCancel(ctx), event)
	var noTransition fsm.NoTransitionError
	if err == nil || errors.As(err, &noTransition) {
		return nil
	}
	return fmt.Errorf("workflow event %s from %s: %w", event, m.Current(), err)
}
