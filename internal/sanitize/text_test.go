package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextStripsTags(t *testing.T) {
	require.Equal(t, "hello", Text("<script>alert(1)</script>hello"))
	require.Equal(t, "bold", Text("<b>bold</b>"))
	require.Equal(t, "plain text", Text("plain text"))
}

func TestContentEscapesMarkup(t *testing.T) {
	out := Content(`<img src=x onerror=alert(1)>hi "there"`, MaxContentLength)
	require.NotContains(t, out, "<")
	require.NotContains(t, out, `"`)
	require.Contains(t, out, "hi")
}

func TestContentClampsLength(t *testing.T) {
	long := strings.Repeat("a", 2*MaxContentLength)
	out := Content(long, MaxContentLength)
	require.Len(t, out, MaxContentLength)
}

func TestClampRuneAware(t *testing.T) {
	require.Equal(t, "héllo", Clamp("héllo", 10))
	require.Equal(t, "hé", Clamp("héllo", 2))
	require.Equal(t, "", Clamp("héllo", 0))
}
