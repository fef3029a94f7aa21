package sag

// Keys used in the SettingsStore.
const (
	SettingExtensions     = "extensions"
	SettingCaptureSource  = "paths/capture_source"
	SettingCaptureOutput  = "paths/capture_output"
	SettingRecreateInput  = "paths/recreate_input"
	SettingRecreateOutput = "paths/recreate_output"
)

// SettingsStore persists remembered values between runs.
type SettingsStore interface {
	GetString(key string, def string) (string, error)
	SetString(key string, value string) error
	GetList(key string, def []string) ([]string, error)
	SetList(key string, values []string) error
	Delete(key string) error
}

// Settings is the explicit configuration handed to orchestration calls.
type Settings struct {
	// Extensions is the default extension list for scans.
	Extensions []string

	// MaxFileSize skips files larger than this many bytes during a scan.
	// Zero disables the limit.
	MaxFileSize int64
}

// DefaultMaxFileSize is the scan limit used when none is configured.
const DefaultMaxFileSize int64 = 100 << 20

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Extensions:  append([]string(nil), DefaultExtensions...),
		MaxFileSize: DefaultMaxFileSize,
	}
}

// RememberedExtensions returns the extension list stored in store, falling
// back to fallback when the store is nil or has no entry.
func RememberedExtensions(store SettingsStore, fallback []string) ([]string, error) {
	if store == nil {
		return fallback, nil
	}
	exts, err := store.GetList(SettingExtensions, nil)
	if err != nil {
		return nil, err
	}
	if len(exts) == 0 {
		return fallback, nil
	}
	return exts, nil
}
