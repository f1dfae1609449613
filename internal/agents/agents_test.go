package agents

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
)

func leadCtx(state *domain.LeadState) *domain.AgentContext {
	return &domain.AgentContext{State: state}
}

// ============================================================
// SDR
// ============================================================

func TestSDRFirstMessagePresentsPlaybook(t *testing.T) {
	sdr := NewSDR(zap.NewNop())
	state := domain.NewLeadState("5511999990000")
	state.MessageCount = 1

	res, err := sdr.Process(context.Background(), "oi", leadCtx(state))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(res.Message, "segmento") {
		t.Errorf("expected opening question about segment, got %q", res.Message)
	}
	profile, ok := res.UpdateState["companyProfile"].(map[string]any)
	if !ok || profile["playbookStarted"] != true {
		t.Errorf("expected playbookStarted patch, got %v", res.UpdateState)
	}
	if res.Handoff != nil {
		t.Error("first message should not request handoff")
	}
}

func TestSDRFillsQuestionsInOrder(t *testing.T) {
	sdr := NewSDR(zap.NewNop())
	state := domain.NewLeadState("5511999990000")
	state.MessageCount = 2
	state.CompanyProfile = map[string]any{"playbookStarted": true, "segment": "tecnologia"}

	res, err := sdr.Process(context.Background(), "somos 8 vendedores", leadCtx(state))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	profile := res.UpdateState["companyProfile"].(map[string]any)
	if profile["teamSize"] != "somos 8 vendedores" {
		t.Errorf("answer should fill teamSize, got %v", profile)
	}
	if res.Handoff != nil {
		t.Error("profile still incomplete, no handoff expected")
	}
}

func TestSDREmitsHandoffWhenProfileComplete(t *testing.T) {
	sdr := NewSDR(zap.NewNop())
	state := domain.NewLeadState("5511999990000")
	state.MessageCount = 4
	state.CompanyProfile = map[string]any{
		"playbookStarted": true,
		"segment":         "tecnologia",
		"teamSize":        "8",
	}

	res, err := sdr.Process(context.Background(), "fechar mais negócios", leadCtx(state))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Handoff == nil {
		t.Fatal("expected handoff request")
	}
	if res.Handoff.NextAgent != domain.AgentSpecialist {
		t.Errorf("NextAgent = %q, want specialist", res.Handoff.NextAgent)
	}
	if res.Handoff.Mode != domain.HandoffReplay {
		t.Errorf("Mode = %v, want replay", res.Handoff.Mode)
	}
	if res.Handoff.OriginalMessage != "fechar mais negócios" {
		t.Errorf("OriginalMessage = %q", res.Handoff.OriginalMessage)
	}
	snapshot := res.Handoff.Data["companyProfile"].(map[string]any)
	if snapshot["mainChallenge"] != "fechar mais negócios" || snapshot["profilingComplete"] != true {
		t.Errorf("snapshot incomplete: %v", snapshot)
	}
	if res.Handoff.Data["qualificationScore"] != 40.0 {
		t.Errorf("qualificationScore = %v", res.Handoff.Data["qualificationScore"])
	}
}

// ============================================================
// Specialist
// ============================================================

func TestSpecialistIncrementsTouchpoints(t *testing.T) {
	sp := NewSpecialist(zap.NewNop())
	state := domain.NewLeadState("5511999990000")
	// Depois do round-trip pelo store o contador chega como float64.
	state.ConsultativeEngine = map[string]any{"touchpoints": float64(3)}

	res, err := sp.Process(context.Background(), "me conta mais", leadCtx(state))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	engine := res.UpdateState["consultativeEngine"].(map[string]any)
	if engine["touchpoints"] != 4 {
		t.Errorf("touchpoints = %v, want 4", engine["touchpoints"])
	}
}

func TestSpecialistPricingIntentRaisesScore(t *testing.T) {
	sp := NewSpecialist(zap.NewNop())
	state := domain.NewLeadState("5511999990000")
	state.QualificationScore = 40

	agentCtx := leadCtx(state)
	agentCtx.Intent = &domain.IntentResult{Intent: "pricing_request", Confidence: 0.9}

	res, err := sp.Process(context.Background(), "quanto custa o serviço?", agentCtx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.UpdateState["qualificationScore"] != 55.0 {
		t.Errorf("qualificationScore = %v, want 55", res.UpdateState["qualificationScore"])
	}
}

func TestSpecialistForwardsMeetingInterestToScheduler(t *testing.T) {
	sp := NewSpecialist(zap.NewNop())
	state := domain.NewLeadState("5511999990000")
	state.QualificationScore = 50

	agentCtx := leadCtx(state)
	agentCtx.Intent = &domain.IntentResult{Intent: "meeting_request", Confidence: 0.4}

	res, err := sp.Process(context.Background(), "podemos conversar essa semana?", agentCtx)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Handoff == nil {
		t.Fatal("expected handoff to scheduler")
	}
	if res.Handoff.NextAgent != domain.AgentScheduler || res.Handoff.Mode != domain.HandoffSilent {
		t.Errorf("handoff = %+v, want silent to scheduler", res.Handoff)
	}
	if res.Handoff.Data["qualificationScore"] != 70.0 {
		t.Errorf("qualificationScore = %v, want 70", res.Handoff.Data["qualificationScore"])
	}
}

func TestSpecialistDetectsBuyingSignals(t *testing.T) {
	signals := detectBuyingSignals("qual o prazo? é urgente pra gente")
	found := map[any]bool{}
	for _, s := range signals {
		found[s] = true
	}
	if !found["asked_timeline"] || !found["urgency"] {
		t.Errorf("signals = %v, want asked_timeline and urgency", signals)
	}
	if len(detectBuyingSignals("bom dia")) != 0 {
		t.Error("neutral message should carry no signals")
	}
}

// ============================================================
// Scheduler
// ============================================================

func TestSchedulerProposesWeekdaySlots(t *testing.T) {
	sc := NewScheduler(zap.NewNop())
	// Sexta-feira: os próximos dias úteis são segunda e terça.
	sc.now = func() time.Time {
		return time.Date(2025, time.March, 7, 9, 0, 0, 0, time.UTC)
	}

	res, err := sc.Process(context.Background(), "quero agendar", leadCtx(domain.NewLeadState("5511999990000")))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	sched := res.UpdateState["scheduler"].(map[string]any)
	if sched["status"] != "proposed" {
		t.Fatalf("status = %v", sched["status"])
	}
	slots := sched["proposedSlots"].([]any)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	first, _ := time.Parse(time.RFC3339, slots[0].(string))
	second, _ := time.Parse(time.RFC3339, slots[1].(string))
	if first.Weekday() != time.Monday || first.Hour() != 10 {
		t.Errorf("first slot = %v, want Monday 10h", first)
	}
	if second.Weekday() != time.Tuesday || second.Hour() != 15 {
		t.Errorf("second slot = %v, want Tuesday 15h", second)
	}
}

func TestSchedulerConfirmsProposedSlot(t *testing.T) {
	sc := NewScheduler(zap.NewNop())
	fixed := time.Date(2025, time.March, 10, 11, 30, 0, 0, time.UTC)
	sc.now = func() time.Time { return fixed }

	state := domain.NewLeadState("5511999990000")
	state.Scheduler = map[string]any{"status": "proposed"}

	res, err := sc.Process(context.Background(), "pode ser o primeiro horário", leadCtx(state))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	sched := res.UpdateState["scheduler"].(map[string]any)
	if sched["status"] != "confirmed" {
		t.Errorf("status = %v, want confirmed", sched["status"])
	}
	if sched["confirmedAt"] != fixed.Format(time.RFC3339) {
		t.Errorf("confirmedAt = %v", sched["confirmedAt"])
	}
	if res.UpdateState["conversationCompleted"] != true {
		t.Error("confirmation should complete the conversation")
	}
}

func TestSchedulerRandomMessageReProposes(t *testing.T) {
	sc := NewScheduler(zap.NewNop())
	state := domain.NewLeadState("5511999990000")
	state.Scheduler = map[string]any{"status": "proposed"}

	res, err := sc.Process(context.Background(), "deixa eu ver minha agenda", leadCtx(state))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	sched := res.UpdateState["scheduler"].(map[string]any)
	if sched["status"] != "proposed" {
		t.Errorf("non-confirmation should keep proposing, got %v", sched["status"])
	}
}

// ============================================================
// Atendimento
// ============================================================

func TestAtendimentoQueuesForHuman(t *testing.T) {
	at := NewAtendimento(zap.NewNop())

	res, err := at.Process(context.Background(), "quero falar com uma pessoa", leadCtx(domain.NewLeadState("5511999990000")))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	meta := res.UpdateState["metadata"].(map[string]any)
	queue := meta["humanQueue"].(map[string]any)
	if queue["pending"] != true {
		t.Errorf("expected pending human queue entry, got %v", queue)
	}

	hook, err := at.OnHandoffReceived(context.Background(), "5511999990000", domain.NewLeadState("5511999990000"))
	if err != nil {
		t.Fatalf("OnHandoffReceived: %v", err)
	}
	if hook.Message == "" {
		t.Error("handoff greeting should not be empty")
	}
}
