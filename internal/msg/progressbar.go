package msg

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// ProgressBar counts finished build steps. It is safe for concurrent use.
type ProgressBar struct {
	Total   int
	Current int
	Label   string
	Start   time.Time
	W       io.Writer

	mu         sync.Mutex
	throbIndex int
}

var throbbers = []rune{'|', '/', '-', '\\'}

var (
	activeMu  sync.Mutex
	activeBar *ProgressBar
)

// withBarCleared erases the active bar (if any), runs fn and draws the bar again
// so that regular output never ends up glued to the end of the bar.
func withBarCleared(fn func()) {
	activeMu.Lock()
	defer activeMu.Unlock()
	if activeBar == nil {
		fn()
		return
	}
	activeBar.mu.Lock()
	defer activeBar.mu.Unlock()
	fmt.Fprint(activeBar.W, "\r\033[K")
	fn()
	activeBar.print(false)
}

func NewProgressBar(total int, label string, w io.Writer) *ProgressBar {
	return &ProgressBar{
		Total: total,
		Label: label,
		Start: time.Now(),
		W:     w,
	}
}

// Show makes pb the active bar and draws it
func (pb *ProgressBar) Show() {
	activeMu.Lock()
	activeBar = pb
	activeMu.Unlock()

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.print(false)
}

// IsTerminal reports whether w is an interactive terminal. Progress bars are
// only drawn on terminals since they rely on carriage returns.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Add marks n more steps as done and redraws the bar
func (pb *ProgressBar) Add(n int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.Current += n
	pb.print(false)
}

func (pb *ProgressBar) print(finish bool) {
	width := 40
	percent := float64(pb.Current) / float64(max(pb.Total, 1))
	if finish {
		percent = 1
	}

	filled := min(int(percent*float64(width)), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("-", width-filled)

	throb := throbbers[pb.throbIndex%len(throbbers)]
	pb.throbIndex++
	if finish {
		throb = ' '
	}

	fmt.Fprintf(pb.W, "\r%s %d/%d [%s] %c",
		pb.Label,
		pb.Current,
		pb.Total,
		bar,
		throb,
	)
}

func (pb *ProgressBar) Finish() {
	activeMu.Lock()
	if activeBar == pb {
		activeBar = nil
	}
	activeMu.Unlock()

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.print(true)
	fmt.Fprintf(pb.W, " %s\n", time.Since(pb.Start).Round(time.Millisecond))
}
