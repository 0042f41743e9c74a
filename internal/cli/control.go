package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/remoteui/internal/client"
	"github.com/thruflo/remoteui/internal/control"
)

var (
	controlPrompt string
	controlValue  float32
	controlSteps  int
	controlPlay   bool
	controlPause  bool
	controlStop   bool
	controlWait   time.Duration
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Edit the control state of a running server",
	Long: `Connects to an interface server, applies the given edits and prints the
resulting control state. Without edit flags it prints the current state.

Example:
  remoteui control --prompt "a lighthouse at dusk" --steps 64
  remoteui control --value 0.5
  remoteui control --pause
  remoteui control --stop`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	addViewerFlags(controlCmd)
	addControlFlags(controlCmd)
	rootCmd.AddCommand(controlCmd)
}

func addControlFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&controlPrompt, "prompt", "", "set the prompt")
	cmd.Flags().Float32Var(&controlValue, "value", 0, "set the value")
	cmd.Flags().IntVar(&controlSteps, "steps", 0, "set the step count (at least 1)")
	cmd.Flags().BoolVar(&controlPlay, "play", false, "resume rendering")
	cmd.Flags().BoolVar(&controlPause, "pause", false, "pause rendering")
	cmd.Flags().BoolVar(&controlStop, "stop", false, "ask the producer to stop")
	cmd.Flags().DurationVar(&controlWait, "wait", 5*time.Second, "how long to wait for the server to confirm the edit")
	cmd.MarkFlagsMutuallyExclusive("play", "pause")
}

func runControl(cmd *cobra.Command, args []string) error {
	edit, err := editFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), controlWait)
	defer cancel()

	c, err := dialViewer(ctx, 0)
	if err != nil {
		return err
	}
	defer c.Detach()

	st, err := applyControl(ctx, c, edit)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), st.String())
	return nil
}

// editFromFlags builds an edit from the flags the user set.
func editFromFlags(cmd *cobra.Command) (control.Edit, error) {
	flags := cmd.Flags()
	var e control.Edit
	if flags.Changed("prompt") {
		e = e.Merge(control.SetPrompt(controlPrompt))
	}
	if flags.Changed("value") {
		e = e.Merge(control.SetValue(controlValue))
	}
	if flags.Changed("steps") {
		e = e.Merge(control.SetSteps(controlSteps))
	}
	if controlPlay && controlPause {
		return control.Edit{}, errors.New("--play and --pause cannot be combined")
	}
	if controlPlay {
		e = e.Merge(control.SetPlaying(true))
	}
	if controlPause {
		e = e.Merge(control.SetPlaying(false))
	}
	if controlStop {
		e = e.Merge(control.SetStop(true))
	}
	return e, e.Validate()
}

// applyControl sends e and waits until the server echoes a state that
// reflects it.
func applyControl(ctx context.Context, c *client.Client, e control.Edit) (control.State, error) {
	snap, err := c.WaitFor(ctx, func(s client.Snapshot) bool { return s.HasState })
	if err != nil {
		return control.State{}, fmt.Errorf("no state received: %w", err)
	}
	if e.Empty() {
		return snap.State, nil
	}

	if err := c.Send(e); err != nil {
		return control.State{}, err
	}
	snap, err = c.WaitFor(ctx, func(s client.Snapshot) bool { return reflects(s.State, e) })
	if err != nil {
		return snap.State, fmt.Errorf("edit not confirmed: %w", err)
	}
	return snap.State, nil
}

// reflects reports whether every field set in e has its value in st.
func reflects(st control.State, e control.Edit) bool {
	switch {
	case e.Stop != nil && st.Stop != *e.Stop,
		e.IsPlaying != nil && st.IsPlaying != *e.IsPlaying,
		e.Prompt != nil && st.Prompt != *e.Prompt,
		e.Steps != nil && st.Steps != *e.Steps,
		e.Value != nil && st.Value != *e.Value:
		return false
	}
	return true
}
