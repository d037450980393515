package results

import (
	"encoding/json"
	"testing"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *domain.Result {
	return &domain.Result{
		JobID:  "job-1",
		Symbol: "AAPL",
		Status: domain.StatusDone,
		Total:  5,
		Done:   5,
		Results: map[string]json.RawMessage{
			"Asset Play|annual": json.RawMessage(`{
				"symbol": "AAPL",
				"overall_assessment": "Asset Play – Watch/Avoid",
				"message": "Kurs über Buchwert",
				"price_to_book": {"value": 45.1, "meets_criterion": false}
			}`),
			"Wachstumswerte|quarterly": json.RawMessage(`{
				"overall_assessment": "Wachstumswert",
				"message": "Umsatzwachstum stabil",
				"revenue_growth": {"value": 12.5, "meets_criterion": true},
				"eps_growth": {"value": 8, "meets_criterion": true}
			}`),
			"Wachstumswerte|annual": json.RawMessage(`{
				"overall_assessment": "Kein Wachstumswert",
				"message": "EPS growth below threshold",
				"revenue_growth": {"value": 4.2, "meets_criterion": false},
				"eps_growth": {"value": 15, "meets_criterion": true},
				"crv": {"sector": "Technology", "ratios": [1.2, "inf", null]}
			}`),
			"Dividendenwerte|annual": json.RawMessage(`{
				"symbol": "AAPL",
				"error": "Keine Dividendendaten"
			}`),
			"Average Grower|annual": json.RawMessage(`{
				"overall_assessment": "Nicht analysierbar",
				"message": "Zu wenig Historie"
			}`),
		},
	}
}

func TestDecodeAndContains(t *testing.T) {
	v, err := Decode([]byte(`{"a": {"b": [1, 2.5, "Deep Value", true, null]}, "Key_Name": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, KindObject, v.Kind)

	tests := []struct {
		needle string
		want   bool
	}{
		{needle: "deep value", want: true},
		{needle: "DEEP", want: true},
		{needle: "2.5", want: true},
		{needle: "true", want: true},
		{needle: "key_name", want: true},
		{needle: "null", want: false},
		{needle: "missing", want: false},
		{needle: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.needle, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Contains(tt.needle))
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"a":`))
	require.Error(t, err)

	_, err = Decode([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing data")
}

func TestValue_GetAndText(t *testing.T) {
	v, err := Decode([]byte(`{"z": 1, "a": "first", "m": false, "n": null, "o": {}}`))
	require.NoError(t, err)

	a, ok := v.Get("a")
	require.True(t, ok)
	assert.Equal(t, "first", a.Text())

	z, ok := v.Get("z")
	require.True(t, ok)
	assert.Equal(t, "1", z.Text())

	m, _ := v.Get("m")
	assert.Equal(t, "false", m.Text())

	n, _ := v.Get("n")
	assert.Equal(t, KindNull, n.Kind)
	assert.Empty(t, n.Text())

	_, ok = v.Get("missing")
	assert.False(t, ok)

	_, ok = a.Get("a")
	assert.False(t, ok)
}

func TestBuild(t *testing.T) {
	entries, err := Build(sampleResult())
	require.NoError(t, err)
	require.Len(t, entries, 5)

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	assert.Equal(t, []string{
		"Wachstumswerte|annual",
		"Wachstumswerte|quarterly",
		"Dividendenwerte|annual",
		"Average Grower|annual",
		"Asset Play|annual",
	}, keys)

	annual := entries[0]
	assert.Equal(t, "Wachstumswerte", annual.Analysis)
	assert.Equal(t, domain.FrequencyAnnual, annual.Frequency)
	assert.Equal(t, HealthNegative, annual.Health)
	assert.Equal(t, 1, annual.CriteriaMet)
	assert.Equal(t, 2, annual.Criteria)

	assert.Equal(t, HealthPositive, entries[1].Health)
	assert.Equal(t, 2, entries[1].CriteriaMet)

	assert.Equal(t, HealthError, entries[2].Health)
	assert.Equal(t, "Keine Dividendendaten", entries[2].ErrorText)

	assert.Equal(t, HealthError, entries[3].Health)
	assert.Equal(t, HealthNegative, entries[4].Health)
}

func TestBuild_Nil(t *testing.T) {
	entries, err := Build(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuild_InvalidPayload(t *testing.T) {
	_, err := Build(&domain.Result{Results: map[string]json.RawMessage{"X|annual": json.RawMessage(`{`)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"X|annual"`)
}

func TestApply(t *testing.T) {
	entries, err := Build(sampleResult())
	require.NoError(t, err)

	tests := []struct {
		name       string
		filter     Filter
		wantKeys   []string
		wantFreq   map[domain.Frequency]int
		wantHealth map[Health]int
	}{
		{
			name:   "no filter",
			filter: Filter{},
			wantKeys: []string{
				"Wachstumswerte|annual", "Wachstumswerte|quarterly", "Dividendenwerte|annual",
				"Average Grower|annual", "Asset Play|annual",
			},
			wantFreq:   map[domain.Frequency]int{domain.FrequencyAnnual: 4, domain.FrequencyQuarterly: 1},
			wantHealth: map[Health]int{HealthPositive: 1, HealthNegative: 2, HealthError: 2},
		},
		{
			name:       "frequency facet",
			filter:     Filter{Frequency: domain.FrequencyQuarterly},
			wantKeys:   []string{"Wachstumswerte|quarterly"},
			wantFreq:   map[domain.Frequency]int{domain.FrequencyAnnual: 4, domain.FrequencyQuarterly: 1},
			wantHealth: map[Health]int{HealthPositive: 1},
		},
		{
			name:       "health facet",
			filter:     Filter{Health: HealthError},
			wantKeys:   []string{"Dividendenwerte|annual", "Average Grower|annual"},
			wantFreq:   map[domain.Frequency]int{domain.FrequencyAnnual: 2},
			wantHealth: map[Health]int{HealthPositive: 1, HealthNegative: 2, HealthError: 2},
		},
		{
			name:       "deep search hits nested sector",
			filter:     Filter{Query: "technology"},
			wantKeys:   []string{"Wachstumswerte|annual"},
			wantFreq:   map[domain.Frequency]int{domain.FrequencyAnnual: 1},
			wantHealth: map[Health]int{HealthNegative: 1},
		},
		{
			name:       "search on analysis name",
			filter:     Filter{Query: "wachstum"},
			wantKeys:   []string{"Wachstumswerte|annual", "Wachstumswerte|quarterly"},
			wantFreq:   map[domain.Frequency]int{domain.FrequencyAnnual: 1, domain.FrequencyQuarterly: 1},
			wantHealth: map[Health]int{HealthPositive: 1, HealthNegative: 1},
		},
		{
			name:       "no match",
			filter:     Filter{Query: "zzz"},
			wantKeys:   []string{},
			wantFreq:   map[domain.Frequency]int{},
			wantHealth: map[Health]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := Apply(entries, tt.filter)

			keys := make([]string, 0, len(view.Matches))
			for _, m := range view.Matches {
				keys = append(keys, m.Key)
			}
			assert.Equal(t, tt.wantKeys, keys)
			assert.Equal(t, tt.wantFreq, view.Frequencies)
			assert.Equal(t, tt.wantHealth, view.Health)
			assert.Equal(t, 5, view.Total)
		})
	}
}

func TestApply_Highlights(t *testing.T) {
	entries, err := Build(sampleResult())
	require.NoError(t, err)

	view := Apply(entries, Filter{Query: "growth"})
	require.NotEmpty(t, view.Matches)

	first := view.Matches[0]
	assert.Equal(t, "Wachstumswerte|annual", first.Key)
	assert.Equal(t, []Fragment{
		{Text: "EPS "},
		{Text: "growth", Match: true},
		{Text: " below threshold"},
	}, first.Highlights)
}

func TestParseHealth(t *testing.T) {
	h, err := ParseHealth("")
	require.NoError(t, err)
	assert.Empty(t, h)

	h, err = ParseHealth("all")
	require.NoError(t, err)
	assert.Empty(t, h)

	h, err = ParseHealth("Positive")
	require.NoError(t, err)
	assert.Equal(t, HealthPositive, h)

	_, err = ParseHealth("great")
	require.Error(t, err)
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
		want  []Fragment
	}{
		{name: "empty text", text: "", query: "x", want: nil},
		{name: "empty query", text: "abc", query: "", want: []Fragment{{Text: "abc"}}},
		{
			name:  "case-insensitive keeps casing",
			text:  "Dividend Safe, dividend growing",
			query: "DIVIDEND",
			want: []Fragment{
				{Text: "Dividend", Match: true},
				{Text: " Safe, "},
				{Text: "dividend", Match: true},
				{Text: " growing"},
			},
		},
		{
			name:  "whole text",
			text:  "EPS",
			query: "eps",
			want:  []Fragment{{Text: "EPS", Match: true}},
		},
		{
			name:  "no match",
			text:  "Kurs über Buchwert",
			query: "xyz",
			want:  []Fragment{{Text: "Kurs über Buchwert"}},
		},
		{
			name:  "umlaut",
			text:  "Kurs über Buchwert",
			query: "ÜBER",
			want: []Fragment{
				{Text: "Kurs "},
				{Text: "über", Match: true},
				{Text: " Buchwert"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.text, tt.query))
		})
	}
}
