package objective

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"forgeloop/internal/state"
)

// headingRe matches "## <Level>: <Title>", e.g. "## Primary: Ship v1".
// Grounded on internal/campaign/decomposer.go's regexp-based header/slug
// parsing idiom, adapted from slug-cleaning to heading extraction.
var headingRe = regexp.MustCompile(`(?i)^##\s*(primary|secondary|tertiary)\s*:\s*(.+)$`)

// fieldRe matches a "- key: value" metadata bullet under a heading.
var fieldRe = regexp.MustCompile(`^-\s*([a-z_]+)\s*:\s*(.*)$`)

// ParseMarkdown parses one objective-plan document into a level/id-indexed
// objective set per §4.4: identity is the stable `<level>_<nnn>` scheme,
// assigned by encounter order within each level, and every parsed
// objective starts with an empty Tasks list (filled in later by
// Manager.MergeTasks on each load).
func ParseMarkdown(r io.Reader) (map[state.ObjectiveLevel]map[string]*state.Objective, error) {
	out := map[state.ObjectiveLevel]map[string]*state.Objective{
		state.ObjectivePrimary:   make(map[string]*state.Objective),
		state.ObjectiveSecondary: make(map[string]*state.Objective),
		state.ObjectiveTertiary:  make(map[string]*state.Objective),
	}
	seq := map[state.ObjectiveLevel]int{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current *state.Objective
	var level state.ObjectiveLevel
	var descLines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Description = strings.TrimSpace(strings.Join(descLines, "\n"))
		out[level][current.ID] = current
		current = nil
		descLines = nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			level = state.ObjectiveLevel(strings.ToLower(m[1]))
			seq[level]++
			current = &state.Objective{
				ID:        fmt.Sprintf("%s_%03d", level, seq[level]),
				Level:     level,
				Title:     strings.TrimSpace(m[2]),
				Status:    state.ObjStatusProposed,
				Tasks:     []string{},
				CreatedAt: time.Time{},
			}
			continue
		}

		if current == nil {
			continue
		}

		if fm := fieldRe.FindStringSubmatch(line); fm != nil {
			applyField(current, fm[1], strings.TrimSpace(fm[2]))
			continue
		}

		if strings.TrimSpace(line) != "" {
			descLines = append(descLines, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("objective: scan markdown: %w", err)
	}
	return out, nil
}

func applyField(obj *state.Objective, key, value string) {
	switch key {
	case "status":
		obj.Status = state.ObjectiveStatus(strings.ToUpper(value))
	case "depends_on":
		obj.DependsOn = splitList(value)
	case "blocks":
		obj.Blocks = splitList(value)
	case "acceptance", "acceptance_criteria":
		obj.AcceptanceCriteria = append(obj.AcceptanceCriteria, value)
	case "target_date":
		if t, err := time.Parse("2006-01-02", value); err == nil {
			obj.TargetDate = &t
		}
	case "created_at":
		if t, err := time.Parse("2006-01-02", value); err == nil {
			obj.CreatedAt = t
		}
	case "completion_percentage":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			obj.CompletionPercentage = f
		}
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
