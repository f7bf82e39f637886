package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DialectorOpener returns a gorm.Dialector for a DSN.
type DialectorOpener = func(string) gorm.Dialector

var (
	registryMu sync.RWMutex
	dialects   = make(map[string]DialectorOpener)
)

func init() {
	Register("sqlite", sqlite.Open)
	Register("postgres", postgres.Open)
}

// Register makes a gorm dialect available to [Open] under name.
func Register(name string, opener DialectorOpener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	dialects[name] = opener
}

// Drivers lists the registered dialect names.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(dialects))
	for name := range dialects {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func dialector(name, dsn string) (gorm.Dialector, error) {
	registryMu.RLock()
	opener, ok := dialects[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("catalog: unknown driver %q", name)
	}
	return opener(dsn), nil
}
