package telemetry

import (
	"fmt"
	"log/slog"

	"github.com/blobject/emergence-sub000/config"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkSporeEmergence BookmarkType = "spore_emergence"
	BookmarkCellEmergence  BookmarkType = "cell_emergence"
	BookmarkDensityCrash   BookmarkType = "density_crash"
	BookmarkStablePattern  BookmarkType = "stable_pattern"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int64        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in a run.
type BookmarkDetector struct {
	cfg config.BookmarksConfig

	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	sporesSeen         bool    // mature spore fraction currently above threshold
	densityPeak        float64 // peak mean tally since the last crash
	stableWindowsCount int     // consecutive windows with a steady kind mix
}

// NewBookmarkDetector creates a detector with the given thresholds and history size.
func NewBookmarkDetector(cfg config.BookmarksConfig, historySize int) *BookmarkDetector {
	if historySize < cfg.StablePattern.StableWindows {
		historySize = cfg.StablePattern.StableWindows
	}
	if historySize < 3 {
		historySize = 3
	}
	return &BookmarkDetector{
		cfg:         cfg,
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Reset forgets all history, for example after the population is respawned.
func (bd *BookmarkDetector) Reset() {
	clear(bd.history)
	bd.historyIdx = 0
	bd.historyFull = false
	bd.sporesSeen = false
	bd.densityPeak = 0
	bd.stableWindowsCount = 0
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkSporeEmergence(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkCellEmergence(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkDensityCrash(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkStablePattern(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	if stats.NMean > bd.densityPeak {
		bd.densityPeak = stats.NMean
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// recent returns up to n of the latest history entries, oldest first.
func (bd *BookmarkDetector) recent(n int) []WindowStats {
	size := bd.historyIdx
	if bd.historyFull {
		size = bd.historySize
	}
	n = min(n, size)
	out := make([]WindowStats, n)
	for i := range out {
		out[i] = bd.history[(bd.historyIdx-n+i+bd.historySize)%bd.historySize]
	}
	return out
}

// Fires once each time the mature spore fraction rises through the threshold.
func (bd *BookmarkDetector) checkSporeEmergence(stats WindowStats) *Bookmark {
	above := stats.Agents > 0 && stats.MatureSporeFrac >= bd.cfg.SporeEmergence.MinFraction && stats.MatureSpores > 0
	defer func() { bd.sporesSeen = above }()
	if !above || bd.sporesSeen {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkSporeEmergence,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Mature spores reached %.1f%% (%d agents)", stats.MatureSporeFrac*100, stats.MatureSpores),
	}
}

func (bd *BookmarkDetector) checkCellEmergence(stats WindowStats) *Bookmark {
	history := bd.recent(bd.historySize)
	if len(history) < 3 {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.CellCores
	}
	avg := float64(total) / float64(len(history))

	c := bd.cfg.CellEmergence
	if stats.CellCores >= c.MinCores && float64(stats.CellCores) > avg*c.Multiplier {
		return &Bookmark{
			Type:        BookmarkCellEmergence,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Cell cores %d exceed %.1fx average (%.1f)", stats.CellCores, c.Multiplier, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkDensityCrash(stats WindowStats) *Bookmark {
	if bd.densityPeak == 0 {
		return nil
	}

	drop := 1.0 - stats.NMean/bd.densityPeak
	if drop > bd.cfg.DensityCrash.DropPercent {
		oldPeak := bd.densityPeak
		bd.densityPeak = stats.NMean

		return &Bookmark{
			Type:        BookmarkDensityCrash,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Mean neighbours fell %.0f%% from peak %.2f to %.2f", drop*100, oldPeak, stats.NMean),
		}
	}
	return nil
}

// Fires once when the kind mix has held steady for StableWindows windows.
func (bd *BookmarkDetector) checkStablePattern(stats WindowStats) *Bookmark {
	if stats.MatureSpores+stats.CellHulls+stats.CellCores == 0 {
		bd.stableWindowsCount = 0
		return nil
	}

	history := bd.recent(3)
	if len(history) < 3 {
		return nil
	}

	structured := make([]float64, 0, len(history)+1)
	for _, h := range append(history, stats) {
		structured = append(structured, h.MatureSporeFrac+h.CellFrac)
	}

	if CoefficientOfVariation(structured) < bd.cfg.StablePattern.CVThreshold {
		bd.stableWindowsCount++
	} else {
		bd.stableWindowsCount = 0
	}

	if bd.stableWindowsCount == bd.cfg.StablePattern.StableWindows {
		return &Bookmark{
			Type:        BookmarkStablePattern,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Structured fraction steady at %.3f over %d windows", structured[len(structured)-1], bd.stableWindowsCount),
		}
	}
	return nil
}
