package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/models"
)

const records = `{"questionId":"q-1","finalScore":92,"previousAction":"auto_answer"}
{"questionId":"q-2","finalScore":80,"previousAction":"answer_and_flag"}

{"questionId":"q-3","finalScore":99,"isCritical":true,"criticalCategory":"electrical_safety"}
{"questionId":"q-4","finalScore":95,"isProductSearch":true}
{"questionId":"q-5","finalScore":91,"answer":""}
`

func decode(t *testing.T, out *bytes.Buffer) []replayed {
	t.Helper()
	var rows []replayed
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var r replayed
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		rows = append(rows, r)
	}
	return rows
}

func TestReplay_DefaultThresholds(t *testing.T) {
	var out bytes.Buffer
	s, err := replay(strings.NewReader(records), &out, answering.DefaultSettings().Thresholds)

	require.NoError(t, err)
	rows := decode(t, &out)
	require.Len(t, rows, 5)

	assert.Equal(t, models.ActionAutoAnswer, rows[0].Action)
	assert.Equal(t, models.ActionAnswerAndFlag, rows[1].Action)
	assert.Equal(t, models.ActionEscalate, rows[2].Action)
	assert.Contains(t, rows[2].Reasons, "critical_topic:electrical_safety")
	assert.Equal(t, []string{models.ReasonProductSearch}, rows[3].Reasons)
	assert.Equal(t, models.ActionEscalate, rows[4].Action, "an empty answer is never delivered")

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 0, s.Changed)
	assert.Equal(t, 3, s.Actions[models.ActionEscalate])
}

func TestReplay_StricterThresholdsChangeActions(t *testing.T) {
	var out bytes.Buffer
	s, err := replay(strings.NewReader(records), &out, answering.Thresholds{Low: 85, Review: 95})

	require.NoError(t, err)
	rows := decode(t, &out)
	assert.Equal(t, models.ActionAnswerAndFlag, rows[0].Action)
	assert.True(t, rows[0].Changed)
	assert.Equal(t, models.ActionEscalate, rows[1].Action)
	assert.True(t, rows[1].Changed)
	assert.Equal(t, 2, s.Changed)
}

func TestReplay_IsDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	_, err := replay(strings.NewReader(records), &a, answering.DefaultSettings().Thresholds)
	require.NoError(t, err)
	_, err = replay(strings.NewReader(records), &b, answering.DefaultSettings().Thresholds)
	require.NoError(t, err)

	assert.Equal(t, a.String(), b.String())
}

func TestReplay_BadLine(t *testing.T) {
	_, err := replay(strings.NewReader("{\"questionId\":\"q-1\"}\nnot json\n"), &bytes.Buffer{}, answering.DefaultSettings().Thresholds)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, summary{Total: 3, Changed: 1, Actions: map[models.Action]int{
		models.ActionEscalate:   2,
		models.ActionAutoAnswer: 1,
	}}, answering.Thresholds{Low: 70, Review: 85})

	assert.Equal(t, "thresholds: low=70.0 review=85.0\n  auto_answer      1\n  escalate         2\ntotal: 3, changed: 1\n", out.String())
}
