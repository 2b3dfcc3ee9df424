package config

import "time"

// ServerConfig is the WebDAV target read from
// globalStore.cloudSync.serverConfig.
type ServerConfig struct {
	URL      string
	Username string
	Password string
	Path     string
	Timeout  time.Duration
}

// defaultServerTimeout applies when the document carries no timeout.
const defaultServerTimeout = 30 * time.Second

// Server reads the WebDAV server configuration with defaults applied.
func (d *Document) Server() ServerConfig {
	timeoutMs := d.Int("globalStore.cloudSync.serverConfig.timeout", 0)

	timeout := defaultServerTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	return ServerConfig{
		URL:      d.String("globalStore.cloudSync.serverConfig.url", ""),
		Username: d.String("globalStore.cloudSync.serverConfig.username", ""),
		Password: d.String("globalStore.cloudSync.serverConfig.password", ""),
		Path:     d.String("globalStore.cloudSync.serverConfig.path", "ecopaste-sync"),
		Timeout:  timeout,
	}
}

// SyncMode is the filter/policy tuple under
// globalStore.cloudSync.syncModeConfig.
type SyncMode struct {
	OnlyFavorites   bool
	IncludeText     bool
	IncludeHTML     bool
	IncludeRTF      bool
	IncludeMarkdown bool
	IncludeImages   bool
	IncludeFiles    bool
	Conflict        string // "local", "remote", "merge", "manual"
	DeviceID        string
}

// Mode reads the sync mode with defaults applied.
func (d *Document) Mode() SyncMode {
	const base = "globalStore.cloudSync.syncModeConfig."

	return SyncMode{
		OnlyFavorites:   d.Bool(base+"onlyFavorites", false),
		IncludeText:     d.Bool(base+"includeText", true),
		IncludeHTML:     d.Bool(base+"includeHtml", true),
		IncludeRTF:      d.Bool(base+"includeRtf", true),
		IncludeMarkdown: d.Bool(base+"includeMarkdown", true),
		IncludeImages:   d.Bool(base+"includeImages", true),
		IncludeFiles:    d.Bool(base+"includeFiles", true),
		Conflict:        d.String(base+"conflictResolution", "merge"),
		DeviceID:        d.String(base+"deviceId", ""),
	}
}

// AutoSync reads the auto-sync schedule settings.
type AutoSync struct {
	Enabled  bool
	Interval time.Duration
}

// AutoSyncSettings reads globalStore.cloudSync.autoSyncSettings.
func (d *Document) AutoSyncSettings() AutoSync {
	hours := d.Int("globalStore.cloudSync.autoSyncSettings.intervalHours", 1)
	if hours <= 0 {
		hours = 1
	}

	return AutoSync{
		Enabled:  d.Bool("globalStore.cloudSync.autoSyncSettings.enabled", false),
		Interval: time.Duration(hours) * time.Hour,
	}
}

// Retention is the history retention rule under clipboardStore.history.
// Unit selects the multiplier applied to RetainDays: 0 minutes, 1 hours,
// 2 days (default), 3 months (30 days).
type Retention struct {
	RetainDays  int
	RetainCount int
	Unit        int
}

// unitDurations maps Retention.Unit to the duration of one RetainDays step.
var unitDurations = map[int]time.Duration{
	0: time.Minute,
	1: time.Hour,
	2: 24 * time.Hour,
	3: 30 * 24 * time.Hour,
}

// MaxAge returns the retention window, or zero when age retention is off.
func (r Retention) MaxAge() time.Duration {
	if r.RetainDays <= 0 {
		return 0
	}

	unit, ok := unitDurations[r.Unit]
	if !ok {
		unit = 24 * time.Hour
	}

	return time.Duration(r.RetainDays) * unit
}

// RetentionRule reads clipboardStore.history with defaults applied.
func (d *Document) RetentionRule() Retention {
	return Retention{
		RetainDays:  int(d.Int("clipboardStore.history.retainDays", 0)),
		RetainCount: int(d.Int("clipboardStore.history.retainCount", 0)),
		Unit:        int(d.Int("clipboardStore.history.unit", 2)),
	}
}

// Content reads the clipboardStore.content toggles.
type Content struct {
	CopyPlain      bool
	PastePlain     bool
	AutoSort       bool
	ShowSourceApp  bool
	CodeDetection  bool
	ColorDetection bool
}

// ContentOptions reads the ingestion/detection toggles with defaults.
func (d *Document) ContentOptions() Content {
	const base = "clipboardStore.content."

	return Content{
		CopyPlain:      d.Bool(base+"copyPlain", false),
		PastePlain:     d.Bool(base+"pastePlain", false),
		AutoSort:       d.Bool(base+"autoSort", true),
		ShowSourceApp:  d.Bool(base+"showSourceApp", true),
		CodeDetection:  d.Bool(base+"codeDetection", false),
		ColorDetection: d.Bool(base+"colorDetection", true),
	}
}

// ShortcutBlacklist returns the app process names the ingester ignores.
func (d *Document) ShortcutBlacklist() []string {
	return d.Strings("clipboardStore.shortcutBlacklist")
}

// LastSyncTime reads the persisted last-sync timestamp (ms since epoch).
func (d *Document) LastSyncTime() int64 {
	return d.Int("globalStore.cloudSync.lastSyncTime", 0)
}

// SetLastSyncTime persists the last-sync timestamp (ms since epoch).
func (d *Document) SetLastSyncTime(ms int64) error {
	return d.Set("globalStore.cloudSync.lastSyncTime", ms)
}
