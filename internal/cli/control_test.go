package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/remoteui/internal/control"
	"github.com/thruflo/remoteui/internal/testutil"
)

func parseControlFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "control"}
	addControlFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestEditFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    control.Edit
		wantErr error
	}{
		{name: "no flags", want: control.Edit{}},
		{name: "prompt", args: []string{"--prompt", "dusk"}, want: control.SetPrompt("dusk")},
		{name: "empty prompt is an edit", args: []string{"--prompt", ""}, want: control.SetPrompt("")},
		{
			name: "several fields",
			args: []string{"--value", "0.5", "--steps", "8", "--pause"},
			want: control.SetValue(0.5).Merge(control.SetSteps(8)).Merge(control.SetPlaying(false)),
		},
		{name: "play", args: []string{"--play"}, want: control.SetPlaying(true)},
		{name: "stop", args: []string{"--stop"}, want: control.SetStop(true)},
		{name: "invalid steps", args: []string{"--steps", "0"}, wantErr: control.ErrInvalidSteps},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := parseControlFlags(t, tt.args...)
			got, err := editFromFlags(cmd)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlayAndPauseConflict(t *testing.T) {
	cmd := parseControlFlags(t, "--play", "--pause")
	_, err := editFromFlags(cmd)
	assert.Error(t, err)
}

func TestReflects(t *testing.T) {
	st := control.DefaultState()
	assert.True(t, reflects(st, control.Edit{}))
	assert.True(t, reflects(st, control.SetSteps(20)))
	assert.False(t, reflects(st, control.SetSteps(21)))
	assert.False(t, reflects(st, control.SetPrompt("x").Merge(control.SetSteps(20))))

	st.Prompt = "x"
	assert.True(t, reflects(st, control.SetPrompt("x").Merge(control.SetSteps(20))))
}

func TestApplyControl(t *testing.T) {
	ctx, cancel := testutil.ShortOperationContext(t)
	defer cancel()
	srv, _ := startProducer(t)
	c := dialTest(t, ctx, srv)

	st, err := applyControl(ctx, c, control.Edit{})
	require.NoError(t, err)
	assert.Equal(t, control.DefaultState(), st)

	st, err = applyControl(ctx, c, control.SetPrompt("harbour").Merge(control.SetValue(2)))
	require.NoError(t, err)
	assert.Equal(t, "harbour", st.Prompt)
	assert.Equal(t, float32(2), st.Value)

	_, err = applyControl(ctx, c, control.SetSteps(-3))
	assert.ErrorIs(t, err, control.ErrInvalidSteps)
}
