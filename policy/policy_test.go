package policy

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func nopLogger() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

func TestShouldNotComplete(t *testing.T) {
	log := nopLogger()
	require.Error(t, ShouldNotComplete(log, "pipes", nil), "clean completion is still an error")
	require.ErrorIs(t, ShouldNotComplete(log, "pipes", errBoom), errBoom)
}

func TestMayComplete(t *testing.T) {
	log := nopLogger()
	require.NoError(t, MayComplete(log, "processes", nil))
	require.ErrorIs(t, MayComplete(log, "processes", errBoom), errBoom)
}

func TestNeverFail(t *testing.T) {
	log := nopLogger()
	require.NoError(t, NeverFail(log, "loggers", nil))
	require.NoError(t, NeverFail(log, "loggers", errBoom))
}
