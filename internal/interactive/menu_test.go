package interactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMenuChoices(t *testing.T) {
	t.Parallel()

	called := false
	choices, optionMap := menuChoices([]MenuOption{
		{Name: "Run", Description: "Run a suite", Action: func() error { called = true; return nil }},
		{Name: "Export", Description: "Export a run", Action: func() error { return nil }},
	})

	assert.Equal(t, []string{"Run - Run a suite", "Export - Export a run", "Exit"}, choices)
	require.Contains(t, optionMap, "Run - Run a suite")
	assert.NotContains(t, optionMap, "Exit")

	require.NoError(t, optionMap["Run - Run a suite"].Action())
	assert.True(t, called)
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b ,"))
	assert.Empty(t, SplitList(""))
}

func TestSelectWithoutChoices(t *testing.T) {
	t.Parallel()

	_, err := Select("pick", nil)
	assert.ErrorIs(t, err, ErrNoChoices)
}
