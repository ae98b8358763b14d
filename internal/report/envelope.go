package report

import (
	"bytes"
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/davidplowman/imx258/internal/sensor"
)

// ExposureEnvelopePNG plots the exposure ceiling against VBLANK for every
// mode, the static tuning aid counterpart of the per-session charts.
func (g *Generator) ExposureEnvelopePNG() (string, error) {
	p := plot.New()
	p.Title.Text = "Exposure ceiling vs VBLANK"
	p.X.Label.Text = "VBLANK (lines)"
	p.Y.Label.Text = "Max exposure (lines)"

	palette := []color.Color{
		color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255},
		color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 255},
		color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 255},
	}

	for i, m := range sensor.Modes() {
		line, err := plotter.NewLine(envelopePoints(m))
		if err != nil {
			return "", fmt.Errorf("mode %dx%d: %w", m.Width, m.Height, err)
		}
		line.Color = palette[i%len(palette)]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%dx%d", m.Width, m.Height), line)
	}

	p.Legend.Top = true
	p.Legend.Left = true

	wt, err := p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return "", fmt.Errorf("render envelope: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}

	path := filepath.Join(g.outDir, "exposure_envelope.png")
	if err := g.fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write envelope: %w", err)
	}
	return path, nil
}

// envelopePoints samples the exposure ceiling over a range of VBLANK
// values for one mode. The ceiling is the frame length minus the fixed
// exposure offset; past the 16-bit register range the long exposure shift
// scales the offset and the envelope loses a step per doubling.
func envelopePoints(m sensor.ModeInfo) plotter.XYs {
	// The lower bound mirrors the VBLANK control range: the minimum frame
	// length comes from the mode's fastest interval.
	flMin := uint64(m.MinFrameInterval.Numerator) * sensor.PixelRate /
		(uint64(m.MinFrameInterval.Denominator) * uint64(m.LineLength))
	vbMin := int64(flMin) - int64(m.Height)
	if vbMin < 0 {
		vbMin = 0
	}

	const vbSpan = 600000 // wide enough to show several shift steps
	const samples = 600

	pts := make(plotter.XYs, 0, samples+1)
	for vb := vbMin; vb <= vbMin+vbSpan; vb += vbSpan / samples {
		fl := uint32(int64(m.Height) + vb)
		shift, _ := sensor.LongExposureShift(fl)
		ceiling := int64(m.Height) + vb - int64(sensor.ExposureOffset<<shift)
		pts = append(pts, plotter.XY{X: float64(vb), Y: float64(ceiling)})
	}
	return pts
}
