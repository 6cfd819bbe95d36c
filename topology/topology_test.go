package topology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFullTopology(t *testing.T) {
	data := []byte(`{
		"ipc": true,
		"router": "select",
		"children": [
			{"name": "gen", "command": ["./ipc-generate", "--count", 1000000]},
			{"name": "sum", "command": ["./ipc-sum"], "env": {"DEBUG": true}}
		],
		"pipes": [
			{"from": "sum", "to": "write"}
		],
		"routes": [
			{"topic": "t", "to": "c1"},
			{"topic": "t", "to": "c2"}
		]
	}`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	require.True(t, cfg.IPC)
	require.Equal(t, "select", cfg.Router)
	require.Len(t, cfg.Children, 2)
	require.Equal(t, "gen", cfg.Children[0].Name)
	require.Equal(t, []string{"./ipc-generate", "--count", "1000000"}, cfg.Children[0].Command)
	require.Equal(t, "true", cfg.Children[1].Env["DEBUG"])

	require.Equal(t, []PipeSpec{{From: "sum", To: "write"}}, cfg.Pipes)
	require.Equal(t, []RouteSpec{{Topic: "t", To: "c1"}, {Topic: "t", To: "c2"}}, cfg.Routes)
}

func TestParseDefaultsIPCTrue(t *testing.T) {
	cfg, err := Parse([]byte(`{"children":[{"name":"a","command":["./a"]}]}`))
	require.NoError(t, err)
	require.True(t, cfg.IPC)
	require.Empty(t, cfg.Router)
}

func TestParseRejectsEmptyCommand(t *testing.T) {
	_, err := Parse([]byte(`{"children":[{"name":"a","command":[]}]}`))
	require.Error(t, err)
}

func TestParseRejectsMissingChildName(t *testing.T) {
	_, err := Parse([]byte(`{"children":[{"command":["./a"]}]}`))
	require.Error(t, err)
}
