package web

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/actionsum/autotrack/internal/activity"
	"github.com/actionsum/autotrack/internal/config"
	"github.com/actionsum/autotrack/internal/ledger"
	"github.com/actionsum/autotrack/internal/models"
	"github.com/actionsum/autotrack/internal/reporter"
	"github.com/actionsum/autotrack/pkg/utils"
)

// Tracker is the running daemon as seen by the status endpoint.
type Tracker interface {
	Snapshot() activity.Snapshot
	Pending() int
	IsRunning() bool
	SourceName() string
}

// TodaySource lists the current day's entries of a ledger that keeps no
// queryable history of its own.
type TodaySource interface {
	TodaysEntries(ctx context.Context) ([]*ledger.Entry, error)
}

type Handler struct {
	config   *config.Config
	tracker  Tracker
	entries  reporter.EntrySource
	today    TodaySource
	reporter *reporter.Reporter
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler serves status from tracker and history from entries. A nil
// entries source disables /api/entries and /api/report.
func NewHandler(cfg *config.Config, tracker Tracker, entries reporter.EntrySource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		config:  cfg,
		tracker: tracker,
		entries: entries,
		logger:  logger,
		now:     time.Now,
	}
	if entries != nil {
		h.reporter = reporter.New(cfg, entries).WithClock(func() time.Time { return h.now() })
	}
	return h
}

// WithTodaysEntries serves /api/entries for the current day from src when
// no entry history is available.
func (h *Handler) WithTodaysEntries(src TodaySource) *Handler {
	h.today = src
	return h
}

// Router builds the gin engine serving the API and the dashboard.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), h.logRequests, cors)
	h.SetupRoutes(r)
	return r
}

func (h *Handler) SetupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/status", h.handleStatus)
	api.GET("/entries", h.handleEntries)
	api.GET("/report", h.handleReport)

	r.GET("/health", h.handleHealth)

	r.GET("/", h.handleIndex)
}

type entryView struct {
	ID              int64      `json:"id"`
	Category        string     `json:"category"`
	Activity        string     `json:"activity"`
	Start           time.Time  `json:"start"`
	End             *time.Time `json:"end"`
	DurationSeconds int64      `json:"duration_seconds"`
}

func (h *Handler) handleStatus(c *gin.Context) {
	snap := h.tracker.Snapshot()

	status := gin.H{
		"running":      h.tracker.IsRunning(),
		"source":       h.tracker.SourceName(),
		"backend":      h.config.Ledger.Backend,
		"active":       snap.State.Active,
		"locked":       snap.State.Locked,
		"idle_timeout": snap.State.IdleTimeout.String(),
		"events":       snap.Events,
		"pending":      h.tracker.Pending(),
		"updated_at":   snap.UpdatedAt,
	}

	if snap.Events > 0 {
		status["last_event"] = gin.H{
			"event":   snap.LastEvent.String(),
			"at":      snap.LastEvent.At,
			"command": snap.LastCommand.String(),
		}
	}
	if snap.LastError != "" {
		status["last_error"] = snap.LastError
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) handleEntries(c *gin.Context) {
	periodType := c.DefaultQuery("period", "day")
	todayOnly := periodType == "day" || periodType == "today"
	if h.entries == nil && (h.today == nil || !todayOnly) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "entry history requires the sqlite ledger backend"})
		return
	}

	period, err := h.period(periodType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var entries []*ledger.Entry
	if h.entries != nil {
		entries, err = h.entries.EntriesSince(c.Request.Context(), period.Start)
	} else {
		entries, err = h.today.TodaysEntries(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("failed to fetch entries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch entries"})
		return
	}

	now := h.now()
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		if !e.Start.Before(period.End) {
			continue
		}
		views = append(views, toView(e, now))
	}

	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && len(views) > limit {
		views = views[len(views)-limit:]
	}

	c.JSON(http.StatusOK, views)
}

func toView(e *ledger.Entry, now time.Time) entryView {
	return entryView{
		ID:              e.ID,
		Category:        e.Category,
		Activity:        e.Activity,
		Start:           e.Start,
		End:             e.End,
		DurationSeconds: int64(e.Duration(now) / time.Second),
	}
}

func (h *Handler) handleReport(c *gin.Context) {
	if h.reporter == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "reports require the sqlite ledger backend"})
		return
	}

	periodType := c.DefaultQuery("period", "day")
	if _, err := h.period(periodType); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.reporter.GenerateReport(c.Request.Context(), periodType)
	if err != nil {
		h.logger.Error("failed to generate report", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate report"})
		return
	}

	if c.GetHeader("HX-Request") == "true" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(reportHTML(report)))
		return
	}

	c.JSON(http.StatusOK, report)
}

func reportHTML(report *models.Report) string {
	if len(report.Days) == 0 {
		return `<div class="loading">No work recorded</div>`
	}

	var longest int64
	for _, day := range report.Days {
		if day.TotalSeconds > longest {
			longest = day.TotalSeconds
		}
	}

	out := `<div class="listing">`
	for _, day := range report.Days {
		width := 0.0
		if longest > 0 {
			width = float64(day.TotalSeconds) / float64(longest) * 100.0
		}
		worked := utils.FormatDuration(time.Duration(day.TotalSeconds) * time.Second)
		if day.Open {
			worked += " (running)"
		}
		out += fmt.Sprintf(`
		<div class="day-item" style="--bar-width: %.1f%%">
			<span class="day-name">%s</span>
			<span class="day-time">%s</span>
		</div>`, width, html.EscapeString(day.Day), worked)
	}
	out += `</div>`

	total := utils.FormatDuration(time.Duration(report.TotalSeconds) * time.Second)
	out += fmt.Sprintf(`<div class="total">Total: %s</div>`, total)

	return out
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   h.now().Format(time.RFC3339),
	})
}

func (h *Handler) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

func (h *Handler) period(periodType string) (*models.ReportPeriod, error) {
	loc, err := h.config.Location()
	if err != nil {
		return nil, err
	}
	return reporter.Period(periodType, h.now().In(loc))
}

func (h *Handler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Debug("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

func cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Next()
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Autotrack</title>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f5f5;
            padding: 20px;
            color: #333;
        }

        h1 { color: #1a1a1a; font-size: 2rem; margin-bottom: 30px; }

        .dashboard { display: flex; gap: 20px; flex-wrap: wrap; }

        .report-box {
            flex: 1;
            min-width: 300px;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            padding: 24px;
        }

        .report-box h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            color: #2c3e50;
            border-bottom: 2px solid #3498db;
            padding-bottom: 10px;
        }

        .day-item {
            display: flex;
            justify-content: space-between;
            padding: 12px 8px;
            border-bottom: 1px solid #eee;
            position: relative;
        }

        .day-item::before {
            content: '';
            position: absolute;
            left: 0;
            top: 0;
            height: 100%;
            width: var(--bar-width, 0%);
            background: #3498db;
            opacity: 0.15;
            border-radius: 4px;
        }

        .day-time { color: #7f8c8d; }
        .loading { color: #7f8c8d; font-style: italic; }

        .total {
            margin-top: 20px;
            padding-top: 15px;
            border-top: 2px solid #ecf0f1;
            font-weight: 600;
            color: #2c3e50;
        }
    </style>
</head>
<body>
    <h1>Autotrack</h1>
    <div class="dashboard">
        <div class="report-box">
            <h2>Today</h2>
            <div hx-get="/api/report?period=day" hx-trigger="load, every 30s" hx-swap="innerHTML">
                <div class="loading">Loading...</div>
            </div>
        </div>

        <div class="report-box">
            <h2>This Week</h2>
            <div hx-get="/api/report?period=week" hx-trigger="load, every 30s" hx-swap="innerHTML">
                <div class="loading">Loading...</div>
            </div>
        </div>

        <div class="report-box">
            <h2>This Month</h2>
            <div hx-get="/api/report?period=month" hx-trigger="load, every 30s" hx-swap="innerHTML">
                <div class="loading">Loading...</div>
            </div>
        </div>
    </div>
</body>
</html>`
