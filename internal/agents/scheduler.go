package agents

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
)

// Scheduler é o agente de agendamento: propõe horários e, confirmado um
// deles, marca a conversa como concluída.
type Scheduler struct {
	logger *zap.Logger
	// now é injetável para os testes controlarem os horários propostos.
	now func() time.Time
}

// NewScheduler cria o agente de agendamento.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger, now: time.Now}
}

func (a *Scheduler) Name() string { return domain.AgentScheduler }

// Process propõe horários na primeira interação e trata a confirmação nas
// seguintes. A confirmação fecha o funil: scheduler.status = confirmed e
// conversationCompleted = true — a partir daí o pipeline responde com a
// mensagem fixa de "já agendado".
func (a *Scheduler) Process(ctx context.Context, message string, agentCtx *domain.AgentContext) (*domain.AgentResult, error) {
	sched := agentCtx.State.Scheduler

	status, _ := sched["status"].(string)
	if status == "proposed" && isConfirmation(message) {
		a.logger.Info("meeting confirmed", zap.String("phone", agentCtx.State.PhoneNumber))
		return &domain.AgentResult{
			Success: true,
			Message: "Fechado! 🎉 Reunião confirmada. Você vai receber o convite no seu WhatsApp e e-mail. Até lá!",
			UpdateState: map[string]any{
				"scheduler": map[string]any{
					"status":      "confirmed",
					"confirmedAt": a.now().UTC().Format(time.RFC3339),
				},
				"conversationCompleted": true,
			},
		}, nil
	}

	slots := proposeSlots(a.now())
	return &domain.AgentResult{
		Success: true,
		Message: "Vamos agendar! Tenho estes horários disponíveis: " + strings.Join(slotLabels(slots), " ou ") + ". Qual prefere?",
		UpdateState: map[string]any{
			"scheduler": map[string]any{
				"status":        "proposed",
				"proposedSlots": slots,
			},
		},
	}, nil
}

// OnHandoffReceived se apresenta já oferecendo horários.
func (a *Scheduler) OnHandoffReceived(ctx context.Context, phone string, state *domain.LeadState) (*domain.HandoffHookResult, error) {
	slots := proposeSlots(a.now())
	return &domain.HandoffHookResult{
		Message: "Ótimo, vamos marcar essa conversa! 📅 Tenho " + strings.Join(slotLabels(slots), " ou ") + " livres.",
		UpdateState: map[string]any{
			"scheduler": map[string]any{
				"status":        "proposed",
				"proposedSlots": slots,
			},
		},
	}, nil
}

func isConfirmation(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range []string{"pode ser", "confirmo", "fechado", "combinado", "sim", "perfeito", "esse horário", "esse horario"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// proposeSlots devolve os dois próximos dias úteis às 10h e 15h.
func proposeSlots(now time.Time) []any {
	slots := []any{}
	day := now
	for len(slots) < 2 {
		day = day.AddDate(0, 0, 1)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		hour := 10
		if len(slots) == 1 {
			hour = 15
		}
		slot := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
		slots = append(slots, slot.Format(time.RFC3339))
	}
	return slots
}

func slotLabels(slots []any) []string {
	labels := make([]string, 0, len(slots))
	for _, s := range slots {
		raw, _ := s.(string)
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			labels = append(labels, t.Format("02/01 às 15h04"))
		}
	}
	return labels
}
