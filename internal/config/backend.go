package config

// ConfigBackend abstracts platform-native settings storage for clipd.
// On macOS this is UserDefaults under the com.clipd.app domain (via the
// `defaults` CLI); elsewhere a JSON file at $XDG_CONFIG_HOME/clipd.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
