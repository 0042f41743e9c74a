package cli

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/thruflo/remoteui/internal/control"
	"github.com/thruflo/remoteui/internal/logging"
	"github.com/thruflo/remoteui/internal/server"
	"github.com/thruflo/remoteui/internal/video"
)

// producer is a synthetic render loop. Each tick refines the current image by
// one step; a changed prompt or step count restarts the refinement.
type producer struct {
	srv      *server.Server
	width    int
	height   int
	interval time.Duration
	log      *logging.Logger
}

func (p *producer) run(ctx context.Context) error {
	if err := p.srv.InitialiseVideoStream(p.width, p.height); err != nil {
		return err
	}
	st, err := p.srv.ConsumeState()
	if err != nil {
		return err
	}

	frame := video.NewRaster(p.width, p.height)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var tick, step int
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		changed, err := p.srv.StateChanged()
		if err != nil {
			return ignoreStopped(err)
		}
		if changed {
			next, err := p.srv.ConsumeState()
			if err != nil {
				return ignoreStopped(err)
			}
			if next.Stop {
				p.log.Info("stop requested by viewer")
				return nil
			}
			if next.Prompt != st.Prompt || next.Steps != st.Steps {
				step = 0
			}
			p.log.Debug("state changed", "state", next)
			st = next
		}
		if !st.IsPlaying {
			last = time.Now()
			continue
		}

		tick++
		step = step%st.Steps + 1
		drawPattern(frame, tick, step, st)
		if err := p.srv.SendImage(frame, true); err != nil {
			return ignoreStopped(err)
		}
		if err := p.srv.UpdateProgress(step, st.Steps); err != nil {
			return ignoreStopped(err)
		}

		now := time.Now()
		if elapsed := now.Sub(last).Seconds(); elapsed > 0 {
			pathRate := float32(1 / elapsed)
			if err := p.srv.UpdateSampleRate(pathRate, pathRate*float32(p.width*p.height)); err != nil {
				return ignoreStopped(err)
			}
		}
		last = now
	}
}

func ignoreStopped(err error) error {
	if errors.Is(err, server.ErrAlreadyStopped) {
		return nil
	}
	return err
}

// drawPattern renders an RGB test pattern into r. Rows above the refinement
// line are drawn at full brightness and the rest dimmed, the prompt picks the
// blue level and Value scales brightness.
func drawPattern(r video.Raster, tick, step int, st control.State) {
	blue := promptShade(st.Prompt)
	gain := st.Value
	if gain < 0 {
		gain = 0
	}
	refined := r.Height * step / st.Steps

	for y := 0; y < r.Height; y++ {
		dim := float32(1)
		if y >= refined {
			dim = 0.35
		}
		for x := 0; x < r.Width; x++ {
			red := uint8((x + tick) % r.Width * 255 / r.Width)
			green := uint8(y * 255 / r.Height)
			r.Set(x, y, scale(red, gain*dim), scale(green, gain*dim), scale(blue, gain*dim))
		}
	}
}

func promptShade(prompt string) uint8 {
	if prompt == "" {
		return 128
	}
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return uint8(h.Sum32())
}

func scale(c uint8, gain float32) uint8 {
	v := float32(c) * gain
	switch {
	case v > 255:
		return 255
	case v < 0:
		return 0
	}
	return uint8(v)
}
