package cli

import (
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecLines(t *testing.T) {
	t.Parallel()
	var lines []string
	err := ExecLines(strings.NewReader("drone-1 arm\n\n  drone-1 takeoff 10  \nlist"), func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"drone-1 arm", "drone-1 takeoff 10", "list"}, lines)
}

func TestWords(t *testing.T) {
	t.Parallel()
	items := []prompt.Suggest{{Text: "arm"}, {Text: "disarm"}, {Text: "land"}}
	b := prompt.NewBuffer()
	b.InsertText("drone-1 la", false, true)
	got := Words(*b.Document(), items)
	require.Len(t, got, 1)
	assert.Equal(t, "land", got[0].Text)
}
