package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(200, []byte("")))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(200, []byte(`<div id="__next"></div>`)))
	require.True(t, h.ShouldPromote(200, []byte(`<div id="root"></div>`)))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.ShouldPromote(200, []byte(`<html><script>var a=1;</script><p>t</p></html>`)))
}

func TestHeuristic_ShouldPromote_ContentHeavyPageStaysStatic(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	body := "<html><body>" + strings.Repeat("<p>real content here</p>", 50) + "</body></html>"
	require.False(t, h.ShouldPromote(200, []byte(body)))
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(404, []byte("not found")))
}
