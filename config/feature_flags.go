package config

import (
	"errors"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Флаги компонентов вокруг реестра. Сам реестр под флагом не бывает.
const (
	// Mirror averages into Redis (also needs REDIS_ENABLED)
	FeatureProjectionRedis = "projection.redis"
	// Mirror averages into PostgreSQL (also needs DATABASE_URL)
	FeatureProjectionPostgres = "projection.postgres"
	// Memoize the sorted averages view per registry version
	FeatureQueryAveragesCache = "query.averages_cache"
)

// ErrFeatureNotFound is returned when toggling an unknown flag.
var ErrFeatureNotFound = errors.New("feature not found")

// Feature is one toggle.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// defaultFeatures are all on: whether a sink is wired is decided by its
// connection settings, the flag only lets an operator switch it off.
var defaultFeatures = []Feature{
	{FeatureProjectionRedis, "Project sorted averages into a Redis hash and ranking set", true},
	{FeatureProjectionPostgres, "Project sorted averages into grade_average_snapshots", true},
	{FeatureQueryAveragesCache, "Cache the averages view per registry version", true},
}

// FeatureFlags is a concurrency-safe set of toggles.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]Feature
}

// LoadFeatureFlags returns the defaults with FEATURE_<NAME>=bool overrides applied.
// Unparsable values are ignored.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]Feature, len(defaultFeatures))}

	for _, f := range defaultFeatures {
		if v, err := strconv.ParseBool(os.Getenv(featureNameToEnvKey(f.Name))); err == nil {
			f.Enabled = v
		}
		ff.features[f.Name] = f
	}
	return ff
}

// "projection.redis" -> "FEATURE_PROJECTION_REDIS"
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// IsEnabled reports whether the flag exists and is on.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.features[name].Enabled
}

// SetEnabled switches a flag at runtime.
func (ff *FeatureFlags) SetEnabled(name string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[name]
	if !ok {
		return ErrFeatureNotFound
	}
	f.Enabled = enabled
	ff.features[name] = f
	return nil
}

// EnableFeature enables a feature.
func (ff *FeatureFlags) EnableFeature(name string) error { return ff.SetEnabled(name, true) }

// DisableFeature disables a feature.
func (ff *FeatureFlags) DisableFeature(name string) error { return ff.SetEnabled(name, false) }

// GetAllFeatures returns every flag sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, f)
	}
	ff.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
