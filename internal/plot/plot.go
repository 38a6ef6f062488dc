// Package plot renders the diagnostic PNGs written after training.
package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"sort"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	charWidth  = 7
	lineHeight = 13
	margin     = 20
	cellSize   = 80
	barHeight  = 18
	barGap     = 6
	barMaxLen  = 420
)

var (
	background = color.RGBA{255, 255, 255, 255}
	ink        = color.RGBA{33, 33, 33, 255}
	barColor   = color.RGBA{70, 130, 180, 255}
)

// Bar is one entry of a horizontal bar chart.
type Bar struct {
	Label string
	Value float64
}

// ConfusionMatrix writes cm as an annotated heat map. Rows are true classes
// and columns predicted classes, both in labels order.
func ConfusionMatrix(path string, cm [][]int, labels []string) error {
	img, err := RenderConfusionMatrix(cm, labels)
	if err != nil {
		return err
	}
	return savePNG(path, img)
}

// RenderConfusionMatrix draws the heat map in memory.
func RenderConfusionMatrix(cm [][]int, labels []string) (*image.RGBA, error) {
	k := len(labels)
	if k == 0 || len(cm) != k {
		return nil, fmt.Errorf("plot: confusion matrix is %d rows for %d labels", len(cm), k)
	}
	peak := 0
	for i, row := range cm {
		if len(row) != k {
			return nil, fmt.Errorf("plot: confusion matrix row %d has %d columns", i, len(row))
		}
		for _, v := range row {
			peak = max(peak, v)
		}
	}

	left := margin + textWidth(longest(labels)) + 10
	top := margin + 2*lineHeight + 10
	width := left + k*cellSize + margin
	height := top + k*cellSize + 2*lineHeight + margin
	width = max(width, margin+textWidth(longest(labels))*k+margin)

	img := newCanvas(width, height)
	drawText(img, margin, margin+lineHeight, "Confusion Matrix", ink)
	drawText(img, left, top-6, "Predicted", ink)

	for i := range cm {
		y := top + i*cellSize
		drawText(img, margin, y+cellSize/2+lineHeight/2, labels[i], ink)
		for j, v := range cm[i] {
			x := left + j*cellSize
			shade := 0.0
			if peak > 0 {
				shade = float64(v) / float64(peak)
			}
			fill(img, image.Rect(x, y, x+cellSize-1, y+cellSize-1), heat(shade))

			txt := ink
			if shade > 0.5 {
				txt = background
			}
			s := strconv.Itoa(v)
			drawText(img, x+(cellSize-textWidth(s))/2, y+cellSize/2+lineHeight/2, s, txt)
		}
	}

	for j, l := range labels {
		x := left + j*cellSize + (cellSize-textWidth(l))/2
		drawText(img, max(x, left+j*cellSize), top+k*cellSize+lineHeight+4, l, ink)
	}
	return img, nil
}

// FeatureImportance writes the top n bars, largest first.
func FeatureImportance(path string, bars []Bar, n int) error {
	img, err := RenderBars("Top Feature Importances", bars, n)
	if err != nil {
		return err
	}
	return savePNG(path, img)
}

// RenderBars draws a horizontal bar chart of the n largest values. n <= 0
// draws every bar.
func RenderBars(title string, bars []Bar, n int) (*image.RGBA, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("plot: no bars to draw")
	}
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}

	labels := make([]string, len(sorted))
	for i, b := range sorted {
		if b.Value < 0 {
			return nil, fmt.Errorf("plot: bar %q has negative value", b.Label)
		}
		labels[i] = b.Label
	}

	peak := sorted[0].Value
	left := margin + textWidth(longest(labels)) + 10
	top := margin + 2*lineHeight
	width := left + barMaxLen + 80
	height := top + len(sorted)*(barHeight+barGap) + margin

	img := newCanvas(width, height)
	drawText(img, margin, margin+lineHeight, title, ink)

	for i, b := range sorted {
		y := top + i*(barHeight+barGap)
		drawText(img, margin, y+barHeight/2+lineHeight/2-2, b.Label, ink)

		length := 0
		if peak > 0 {
			length = int(b.Value / peak * barMaxLen)
		}
		if length > 0 {
			fill(img, image.Rect(left, y, left+length, y+barHeight), barColor)
		}
		drawText(img, left+length+6, y+barHeight/2+lineHeight/2-2, strconv.FormatFloat(b.Value, 'f', 4, 64), ink)
	}
	return img, nil
}

func newCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	return img
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// heat maps 0..1 onto white..dark blue.
func heat(t float64) color.RGBA {
	return color.RGBA{
		R: uint8(255 - 227*t),
		G: uint8(255 - 180*t),
		B: uint8(255 - 100*t),
		A: 255,
	}
}

func drawText(img *image.RGBA, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textWidth(s string) int {
	return len(s) * charWidth
}

func longest(ss []string) string {
	out := ""
	for _, s := range ss {
		if len(s) > len(out) {
			out = s
		}
	}
	return out
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
