package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollector_RecordsWhenEnabled(t *testing.T) {
	c := NewCollector(Config{Enabled: true})

	c.RecordDecision("block", "high", 2*time.Millisecond)
	c.RecordDecision("allow", "low", time.Millisecond)
	c.RecordAttackBlocked()
	c.SetBudgetRemaining(0.75)
	c.SetLastPressure(0.42)
	c.RecordLedgerAppend()

	body := scrape(t, c)
	for _, want := range []string{
		`saturn_decisions_total{action="block",risk_level="high"} 1`,
		`saturn_decisions_total{action="allow",risk_level="low"} 1`,
		"saturn_attacks_blocked_total 1",
		"saturn_budget_remaining 0.75",
		"saturn_risk_pressure_last 0.42",
		"saturn_ledger_entries_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Exposition missing %q", want)
		}
	}
}

func TestCollector_DisabledIsNoop(t *testing.T) {
	c := NewCollector(Config{Enabled: false})

	c.RecordDecision("block", "high", time.Millisecond)
	c.RecordAttackBlocked()
	c.SetBudgetRemaining(0.5)

	body := scrape(t, c)
	if strings.Contains(body, `saturn_decisions_total{action="block"`) {
		t.Error("Disabled collector recorded a decision")
	}
}

func TestCollector_CustomNamespace(t *testing.T) {
	c := NewCollector(Config{Enabled: true, Namespace: "gate"})
	c.RecordAttackBlocked()

	body := scrape(t, c)
	if !strings.Contains(body, "gate_attacks_blocked_total 1") {
		t.Error("Namespace not applied")
	}
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}
