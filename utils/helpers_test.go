package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanPhoneNumber(t *testing.T) {
	require.Equal(t, "5511999990000", CleanPhoneNumber("+55 (11) 99999-0000"))
	require.Equal(t, "5511999990000", CleanPhoneNumber("5511999990000"))
	require.Empty(t, CleanPhoneNumber("abc"))
	require.Empty(t, CleanPhoneNumber(""))
}

func TestNormalizeMSISDN(t *testing.T) {
	require.Equal(t, "5511999990000", NormalizeMSISDN("5511999990000@c.us"))
	require.Equal(t, "5511999990000", NormalizeMSISDN("+55 11 99999-0000"))
	require.Equal(t, "5511999990000", NormalizeMSISDN("5511999990000"))

	// Same number in different shapes lands on the same key.
	require.Equal(t, NormalizeMSISDN("5511999990000@c.us"), NormalizeMSISDN("+5511999990000"))
}
