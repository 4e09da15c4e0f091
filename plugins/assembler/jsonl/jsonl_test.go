package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsync/pkg/contract"
)

func TestAssembleLines(t *testing.T) {
	in := []contract.Sentence{
		{Text: "a <b>", StartMs: 0, EndMs: 10, Translation: "甲", Match: contract.MatchExact},
		{Text: "b", StartMs: 10, EndMs: 20},
	}
	r, err := New().Assemble(context.Background(), "x", in)
	require.NoError(t, err)
	sc := bufio.NewScanner(r)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"a <b>"`)
	assert.NotContains(t, lines[1], "translation")

	var back contract.Sentence
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &back))
	assert.Equal(t, in[0], back)
}
