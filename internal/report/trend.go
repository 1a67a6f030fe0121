package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	defaultTrendHeight = 8
	minTrendWidth      = 10
	axisSeparator      = " │ "
	trendColor         = "\x1b[36m"
	colorReset         = "\x1b[0m"
)

// RenderTrend draws final scores on a fixed 0-100 axis using braille
// cells. Fewer than two scores draw nothing.
func RenderTrend(w io.Writer, scores []float64, width, height int) error {
	if len(scores) < 2 {
		return nil
	}
	if height <= 0 {
		height = defaultTrendHeight
	}
	labels := []string{"100", " 50", "  0"}
	if width <= 0 {
		width = terminalWidth() - len(labels[0]) - len(axisSeparator)
	}
	if width < minTrendWidth {
		width = minTrendWidth
	}

	values := resample(scores, width)
	cells := make([][]uint8, height)
	for i := range cells {
		cells[i] = make([]uint8, width)
	}
	dotsHigh := height * 4
	prevX, prevY := -1, -1
	for x, v := range values {
		y := scoreToRow(v, dotsHigh)
		if prevX >= 0 {
			drawLine(prevX, prevY, x*2, y, func(dx, dy int) { setDot(cells, dx, dy) })
		} else {
			setDot(cells, x*2, y)
		}
		prevX, prevY = x*2, y
	}

	color := shouldUseColor(w)
	if _, err := fmt.Fprintln(w, "Score trend"); err != nil {
		return err
	}
	for row := range cells {
		label := strings.Repeat(" ", len(labels[0]))
		switch row {
		case 0:
			label = labels[0]
		case height / 2:
			label = labels[1]
		case height - 1:
			label = labels[2]
		}
		var b strings.Builder
		for _, mask := range cells[row] {
			b.WriteRune(rune(0x2800 + int(mask)))
		}
		line := b.String()
		if color {
			line = trendColor + line + colorReset
		}
		if _, err := fmt.Fprintln(w, label+axisSeparator+line); err != nil {
			return err
		}
	}
	return nil
}

// resample stretches or averages values to exactly width points.
func resample(values []float64, width int) []float64 {
	out := make([]float64, width)
	n := len(values)
	for x := 0; x < width; x++ {
		if n >= width {
			start := x * n / width
			end := (x + 1) * n / width
			if end <= start {
				end = start + 1
			}
			sum := 0.0
			for _, v := range values[start:end] {
				sum += v
			}
			out[x] = sum / float64(end-start)
			continue
		}
		pos := float64(x) * float64(n-1) / float64(width-1)
		lo := int(math.Floor(pos))
		hi := lo + 1
		if hi >= n {
			out[x] = values[n-1]
			continue
		}
		frac := pos - float64(lo)
		out[x] = values[lo]*(1-frac) + values[hi]*frac
	}
	return out
}

// scoreToRow maps a score in [0,100] to a dot row, 0 being the top.
func scoreToRow(score float64, rows int) int {
	score = math.Max(0, math.Min(100, score))
	row := int(math.Round((100 - score) / 100 * float64(rows-1)))
	return row
}

func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := int(math.Abs(float64(x1 - x0)))
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -int(math.Abs(float64(y1 - y0)))
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

var dotMasks = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func setDot(cells [][]uint8, x, y int) {
	if x < 0 || y < 0 {
		return
	}
	cy, cx := y/4, x/2
	if cy >= len(cells) || cx >= len(cells[cy]) {
		return
	}
	cells[cy][cx] |= dotMasks[x%2][y%4]
}

func shouldUseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
