package objective

import (
	"strings"
	"testing"

	"forgeloop/internal/state"
)

const samplePlan = `
## Primary: Ship the orchestrator
- status: APPROVED
- acceptance: all phases run end to end
- acceptance: loop guard escalates correctly
The orchestrator drives the full phase loop unattended.

## Secondary: Harden the tool registry
- status: PROPOSED
- depends_on: primary_001

## Primary: Document the public API
- status: PROPOSED
`

func TestParseMarkdown_AssignsStableSequentialIDs(t *testing.T) {
	t.Parallel()

	parsed, err := ParseMarkdown(strings.NewReader(samplePlan))
	if err != nil {
		t.Fatalf("ParseMarkdown: %v", err)
	}

	if _, ok := parsed[state.ObjectivePrimary]["primary_001"]; !ok {
		t.Fatal("expected first primary heading to be primary_001")
	}
	if _, ok := parsed[state.ObjectivePrimary]["primary_002"]; !ok {
		t.Fatal("expected second primary heading to be primary_002")
	}
	if _, ok := parsed[state.ObjectiveSecondary]["secondary_001"]; !ok {
		t.Fatal("expected first secondary heading to be secondary_001")
	}
}

func TestParseMarkdown_ParsesFieldsAndDescription(t *testing.T) {
	t.Parallel()

	parsed, err := ParseMarkdown(strings.NewReader(samplePlan))
	if err != nil {
		t.Fatalf("ParseMarkdown: %v", err)
	}

	obj := parsed[state.ObjectivePrimary]["primary_001"]
	if obj.Status != state.ObjStatusApproved {
		t.Errorf("expected status APPROVED, got %s", obj.Status)
	}
	if len(obj.AcceptanceCriteria) != 2 {
		t.Errorf("expected 2 acceptance criteria, got %d", len(obj.AcceptanceCriteria))
	}
	if !strings.Contains(obj.Description, "drives the full phase loop") {
		t.Errorf("expected description to be captured, got %q", obj.Description)
	}
}

func TestParseMarkdown_DependsOnParsedAsList(t *testing.T) {
	t.Parallel()

	parsed, err := ParseMarkdown(strings.NewReader(samplePlan))
	if err != nil {
		t.Fatalf("ParseMarkdown: %v", err)
	}

	dep := parsed[state.ObjectiveSecondary]["secondary_001"]
	if len(dep.DependsOn) != 1 || dep.DependsOn[0] != "primary_001" {
		t.Errorf("expected depends_on=[primary_001], got %v", dep.DependsOn)
	}
}

func TestParseMarkdown_TasksAlwaysEmpty(t *testing.T) {
	t.Parallel()

	parsed, err := ParseMarkdown(strings.NewReader(samplePlan))
	if err != nil {
		t.Fatalf("ParseMarkdown: %v", err)
	}

	for _, byID := range parsed {
		for _, obj := range byID {
			if len(obj.Tasks) != 0 {
				t.Errorf("expected parsed objective %s to have empty tasks, got %v", obj.ID, obj.Tasks)
			}
		}
	}
}
