package config

// ConfigBackend abstracts platform-specific storage for planward settings.
// macOS uses UserDefaults under the com.planward.app domain (via the
// `defaults` CLI); other platforms use a JSON file in the XDG config
// directory. Secrets never pass through a backend.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
