package consumers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtensionFor(t *testing.T) {
	// Filename extension wins over the mime type.
	require.Equal(t, ".pdf", extensionFor("image/jpeg", "invoice.pdf"))

	// The exact extension for a mime type depends on the host's tables;
	// it just has to be a real one.
	ext := extensionFor("image/jpeg", "")
	require.NotEqual(t, ".bin", ext)
	require.True(t, len(ext) > 1 && ext[0] == '.')

	// Unknown mime and no filename fall back to a neutral extension.
	require.Equal(t, ".bin", extensionFor("application/x-unknown-thing", ""))
	require.Equal(t, ".bin", extensionFor("", ""))
}
