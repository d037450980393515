package results

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
)

// Health classifies the verdict of one analysis
type Health string

const (
	HealthPositive Health = "positive"
	HealthNegative Health = "negative"
	HealthError    Health = "error"
)

// ParseHealth validates a health filter value; empty means no filter
func ParseHealth(s string) (Health, error) {
	switch h := Health(strings.ToLower(strings.TrimSpace(s))); h {
	case "", "all":
		return "", nil
	case HealthPositive, HealthNegative, HealthError:
		return h, nil
	default:
		return "", fmt.Errorf("unknown health filter %q", s)
	}
}

// positiveVerdicts are the overall_assessment values of a passed analysis
var positiveVerdicts = map[string]bool{
	"suitable":               true,
	"dividend safe":          true,
	"average grower":         true,
	"wachstumswert":          true,
	"typical cycler – buy":   true,
	"turnaround candidate":   true,
	"optionality candidate":  true,
	"asset play – candidate": true,
}

// errorVerdicts mark payloads that could not be analysed at all
var errorVerdicts = map[string]bool{
	"nicht analysierbar": true,
	"keine daten":        true,
}

// Entry is one analysis result prepared for display
type Entry struct {
	Key         string           `json:"key"`
	Analysis    string           `json:"analysis"`
	Frequency   domain.Frequency `json:"frequency"`
	Assessment  string           `json:"assessment,omitempty"`
	Message     string           `json:"message,omitempty"`
	ErrorText   string           `json:"error,omitempty"`
	Health      Health           `json:"health"`
	CriteriaMet int              `json:"criteria_met"`
	Criteria    int              `json:"criteria_total"`
	Payload     Value            `json:"-"`
}

// Build decodes every payload of a result and orders the entries by
// analysis, annual before quarterly.
func Build(res *domain.Result) ([]Entry, error) {
	if res == nil {
		return nil, nil
	}

	entries := make([]Entry, 0, len(res.Results))
	for key, raw := range res.Results {
		payload, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("result %q: %w", key, err)
		}
		entries = append(entries, newEntry(key, payload))
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		oa, ob := domain.AnalysisOrder(a.Analysis), domain.AnalysisOrder(b.Analysis)
		if oa != ob {
			return oa < ob
		}
		if a.Analysis != b.Analysis {
			return a.Analysis < b.Analysis
		}
		return frequencyRank(a.Frequency) < frequencyRank(b.Frequency)
	})

	return entries, nil
}

func newEntry(key string, payload Value) Entry {
	name, freq := domain.SplitResultKey(key)
	e := Entry{
		Key:       key,
		Analysis:  name,
		Frequency: freq,
		Payload:   payload,
	}

	if v, ok := payload.Get("overall_assessment"); ok {
		e.Assessment = v.Text()
	}
	if v, ok := payload.Get("message"); ok {
		e.Message = v.Text()
	}
	if v, ok := payload.Get("error"); ok {
		e.ErrorText = v.Text()
	}

	payload.Walk(func(k string, v Value) {
		if k == "meets_criterion" && v.Kind == KindBool {
			e.Criteria++
			if v.Bool {
				e.CriteriaMet++
			}
		}
	})

	e.Health = classify(e)
	return e
}

func classify(e Entry) Health {
	verdict := strings.ToLower(strings.TrimSpace(e.Assessment))
	switch {
	case e.ErrorText != "" || errorVerdicts[verdict]:
		return HealthError
	case verdict == "" && e.Criteria == 0:
		return HealthError
	case positiveVerdicts[verdict]:
		return HealthPositive
	default:
		return HealthNegative
	}
}

func frequencyRank(f domain.Frequency) int {
	switch f {
	case domain.FrequencyAnnual:
		return 0
	case domain.FrequencyQuarterly:
		return 1
	default:
		return 2
	}
}

// Filter selects entries; zero fields do not filter
type Filter struct {
	Query     string
	Frequency domain.Frequency
	Health    Health
}

// Match is a filtered entry with its highlighted message
type Match struct {
	Entry
	Highlights []Fragment `json:"highlights,omitempty"`
}

// View is the faceted result of applying a Filter
type View struct {
	Matches     []Match                  `json:"matches"`
	Total       int                      `json:"total"`
	Frequencies map[domain.Frequency]int `json:"frequencies"`
	Health      map[Health]int           `json:"health"`
}

// Apply filters entries. Facet counts reflect the query and the other facet,
// so every count shows what selecting that value would return.
func Apply(entries []Entry, f Filter) View {
	view := View{
		Matches:     []Match{},
		Total:       len(entries),
		Frequencies: map[domain.Frequency]int{},
		Health:      map[Health]int{},
	}

	query := strings.TrimSpace(f.Query)
	for _, e := range entries {
		if !matchesQuery(e, query) {
			continue
		}
		freqOK := f.Frequency == "" || e.Frequency == f.Frequency
		healthOK := f.Health == "" || e.Health == f.Health

		if healthOK {
			view.Frequencies[e.Frequency]++
		}
		if freqOK {
			view.Health[e.Health]++
		}
		if freqOK && healthOK {
			m := Match{Entry: e}
			if query != "" && e.Message != "" {
				m.Highlights = Highlight(e.Message, query)
			}
			view.Matches = append(view.Matches, m)
		}
	}

	return view
}

func matchesQuery(e Entry, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(e.Analysis), q) || strings.Contains(strings.ToLower(string(e.Frequency)), q) {
		return true
	}
	return e.Payload.Contains(query)
}
