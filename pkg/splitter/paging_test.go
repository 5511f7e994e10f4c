package splitter_test

import (
	"fmt"
	"testing"

	"github.com/buildbarn/bb-splitter/pkg/manifest"
	"github.com/buildbarn/bb-splitter/pkg/splitter"
	"github.com/stretchr/testify/require"
)

func TestGetPage(t *testing.T) {
	summaries := make([]manifest.Summary, 0, 19)
	for i := 0; i < 19; i++ {
		summaries = append(summaries, manifest.Summary{OriginalName: fmt.Sprintf("file%02d.bin", i)})
	}

	t.Run("First", func(t *testing.T) {
		page := splitter.GetPage(summaries, 1, 8)
		require.Equal(t, 1, page.Number)
		require.Equal(t, 3, page.Count)
		require.Equal(t, summaries[:8], page.Summaries)
	})

	t.Run("Last", func(t *testing.T) {
		page := splitter.GetPage(summaries, 3, 8)
		require.Equal(t, 3, page.Number)
		require.Equal(t, summaries[16:], page.Summaries)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		require.Equal(t, 1, splitter.GetPage(summaries, 0, 8).Number)
		require.Equal(t, 1, splitter.GetPage(summaries, 4, 8).Number)
	})

	t.Run("Empty", func(t *testing.T) {
		page := splitter.GetPage(nil, 2, 8)
		require.Equal(t, 1, page.Number)
		require.Equal(t, 1, page.Count)
		require.Empty(t, page.Summaries)
	})
}
