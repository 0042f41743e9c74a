package cli

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/remoteui/internal/client"
	"github.com/thruflo/remoteui/internal/video"
)

var (
	watchFrames   int
	watchTimeout  time.Duration
	watchSnapshot string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a running server as a headless viewer",
	Long: `Connects to an interface server and prints one line per received frame with
the current progress, sample rate and control state.

Use --frames to exit after a number of frames and --snapshot to save the last
frame as a PNG.

Example:
  remoteui watch --addr 127.0.0.1:4242
  remoteui watch --frames 1 --snapshot frame.png
  remoteui watch --web --addr http://studio:8080 --token <token>`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	addViewerFlags(watchCmd)
	watchCmd.Flags().IntVarP(&watchFrames, "frames", "n", 0, "exit after this many frames (0 watches until interrupted)")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 10*time.Second, "give up when no frame arrives for this long (0 waits forever)")
	watchCmd.Flags().StringVar(&watchSnapshot, "snapshot", "", "write the last received frame to this PNG file")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := dialViewer(ctx, watchTimeout)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected to %s as viewer %s\n", viewerAddr, c.ViewerID())

	last, err := watchLoop(ctx, c, out, watchFrames)
	if watchSnapshot != "" && last != nil {
		if serr := writeSnapshot(watchSnapshot, last.Raster); serr != nil {
			return serr
		}
		fmt.Fprintf(out, "Saved frame %d to %s\n", last.Seq, watchSnapshot)
	}
	return err
}

// watchLoop prints every frame it receives until limit frames have arrived
// (zero means no limit), ctx is done, or the connection fails. It returns the
// last frame seen.
func watchLoop(ctx context.Context, c *client.Client, out io.Writer, limit int) (*client.Frame, error) {
	var last *client.Frame
	var seq uint64
	for n := 0; limit == 0 || n < limit; n++ {
		f, err := c.NextFrame(ctx, seq)
		if err != nil {
			if ctx.Err() != nil {
				return last, nil
			}
			if errors.Is(err, client.ErrVideoTimeout) {
				return last, fmt.Errorf("no frame received for %s", watchTimeout)
			}
			return last, err
		}
		seq = f.Seq
		last = &f
		fmt.Fprintln(out, formatFrameLine(f, c.Snapshot()))
	}
	return last, nil
}

func formatFrameLine(f client.Frame, snap client.Snapshot) string {
	line := fmt.Sprintf("frame %d %s", f.Seq, f.Raster.Geometry())
	if snap.Progress != nil {
		line += fmt.Sprintf(" step %d/%d (%.0f%%)", snap.Progress.Step, snap.Progress.Total, snap.Progress.Fraction*100)
	}
	if snap.SampleRate != nil {
		line += fmt.Sprintf(" %.1f paths/s %.3g rays/s", snap.SampleRate.PathRate, snap.SampleRate.RayRate)
	}
	if snap.HasState {
		line += " " + snap.State.String()
	}
	return line
}

// writeSnapshot saves a BGR raster as a PNG.
func writeSnapshot(path string, r video.Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := png.Encode(f, video.ToImage(r)); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return f.Close()
}
