package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type describeResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func TestParseJSON_Object(t *testing.T) {
	resp := "Sure! Here it is:\n```json\n{\"name\": \"Funding wave\", \"description\": \"x\"}\n```"
	got, err := ParseJSON[describeResult](resp)
	require.NoError(t, err)
	assert.Equal(t, "Funding wave", got.Name)
}

func TestParseJSON_Array(t *testing.T) {
	got, err := ParseJSON[[]int]("indices: [2, 0, 1] done")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, got)
}

func TestParseJSON_Errors(t *testing.T) {
	_, err := ParseJSON[describeResult]("no json here")
	assert.Error(t, err)

	_, err = ParseJSON[describeResult]("{\"name\": ")
	assert.Error(t, err)
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard([]string{}, []string{"a"}))
	assert.Equal(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a", "a"}))
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
}

func TestTokenizeAndClamp(t *testing.T) {
	assert.Equal(t, []string{"acme", "buys", "beta"}, Tokenize("  Acme BUYS\tBeta "))
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.4, Clamp01(0.4))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	s := Summarize([]float64{0.4, 0.1, 0.9, 0.2})
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 0.1, s.Min)
	assert.Equal(t, 0.9, s.Max)
	assert.InDelta(t, 0.4, s.Mean, 1e-9)
	assert.InDelta(t, 0.3, s.Median, 1e-9)
}
