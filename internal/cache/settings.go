package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dautsuro/shelfsieve/internal/tagfilter"
)

// Fixed meta keys for process-wide settings.
const (
	metaTagSettings  = "tag_settings"
	metaHideRejected = "hide_rejected"
)

// TagSettings returns the persisted tag filter settings, or the zero
// value when none were ever saved.
func (c *Cache) TagSettings() (tagfilter.Settings, error) {
	var s tagfilter.Settings
	ok, err := c.getMeta(metaTagSettings, &s)
	if err != nil || !ok {
		return tagfilter.Settings{}, err
	}
	return s, nil
}

// HasTagSettings reports whether tag settings were ever saved,
// distinguishing "never configured" from "configured empty".
func (c *Cache) HasTagSettings() (bool, error) {
	var raw json.RawMessage
	return c.getMeta(metaTagSettings, &raw)
}

// SaveTagSettings normalizes and persists tag filter settings. The
// caller is responsible for triggering a full reconcile afterwards.
func (c *Cache) SaveTagSettings(s tagfilter.Settings) error {
	return c.setMeta(metaTagSettings, tagfilter.NormalizeSettings(s))
}

// HideRejected returns the display preference for suppressing rejected
// items. Defaults to false.
func (c *Cache) HideRejected() (bool, error) {
	var hide bool
	ok, err := c.getMeta(metaHideRejected, &hide)
	if err != nil || !ok {
		return false, err
	}
	return hide, nil
}

// SetHideRejected persists the display preference.
func (c *Cache) SetHideRejected(hide bool) error {
	return c.setMeta(metaHideRejected, hide)
}

func (c *Cache) getMeta(key string, dst any) (bool, error) {
	var value string
	err := c.readDB.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading meta %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		// Corrupt settings behave like unset settings.
		return false, nil
	}
	return true, nil
}

func (c *Cache) setMeta(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding meta %s: %w", key, err)
	}
	_, err = c.writeDB.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("writing meta %s: %w", key, err)
	}
	return nil
}
