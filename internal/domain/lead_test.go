package domain

import (
	"fmt"
	"testing"
	"time"
)

// ============================================================
// Listas de auditoria limitadas
// ============================================================

func TestAppendContextSwitchEvictsOldestAtCap(t *testing.T) {
	state := NewLeadState("5511988887777")
	total := MaxContextSwitches + 5
	for i := 0; i < total; i++ {
		state.AppendContextSwitch(ContextSwitch{
			From:      AgentSDR,
			To:        AgentSpecialist,
			Intent:    fmt.Sprintf("intent-%d", i),
			Timestamp: time.Now(),
		})
	}

	if len(state.ContextSwitches) != MaxContextSwitches {
		t.Fatalf("len = %d, want cap %d", len(state.ContextSwitches), MaxContextSwitches)
	}
	// FIFO: os 5 mais antigos saem, o resto mantém a ordem de chegada.
	if got := state.ContextSwitches[0].Intent; got != "intent-5" {
		t.Errorf("oldest kept = %q, want intent-5", got)
	}
	if got := state.ContextSwitches[len(state.ContextSwitches)-1].Intent; got != fmt.Sprintf("intent-%d", total-1) {
		t.Errorf("newest kept = %q, want intent-%d", got, total-1)
	}
	for i, cs := range state.ContextSwitches {
		if want := fmt.Sprintf("intent-%d", i+5); cs.Intent != want {
			t.Fatalf("position %d = %q, want %q", i, cs.Intent, want)
		}
	}
}

func TestAppendHandoffEvictsOldestAtCap(t *testing.T) {
	state := NewLeadState("5511988887777")
	total := MaxHandoffHistory + 2
	for i := 0; i < total; i++ {
		state.Metadata.AppendHandoff(HandoffRecord{
			From:      AgentSDR,
			To:        AgentSpecialist,
			Reason:    fmt.Sprintf("reason-%d", i),
			Timestamp: time.Now(),
		})
	}

	history := state.Metadata.HandoffHistory
	if len(history) != MaxHandoffHistory {
		t.Fatalf("len = %d, want cap %d", len(history), MaxHandoffHistory)
	}
	if got := history[0].Reason; got != "reason-2" {
		t.Errorf("oldest kept = %q, want reason-2", got)
	}
	if got := history[len(history)-1].Reason; got != fmt.Sprintf("reason-%d", total-1) {
		t.Errorf("newest kept = %q, want reason-%d", got, total-1)
	}
}
