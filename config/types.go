package config

// Pool describes one pool deployment the settlement engine drives.
type Pool struct {
	ID           string   `toml:"ID"`
	Coordinator  string   `toml:"Coordinator"`
	Assessor     string   `toml:"Assessor"`
	Reserve      string   `toml:"Reserve"`
	NAVFeed      string   `toml:"NAVFeed"`
	PauseOnStart bool     `toml:"PauseOnStart"`
	Weights      *Weights `toml:"Weights,omitempty"`
}

// Weights overrides the service-wide solver weights for a single pool.
// Values are decimal strings. The same shape configures the service-wide
// defaults in YAML.
type Weights struct {
	SeniorRedeem string `toml:"SeniorRedeem" yaml:"senior_redeem"`
	JuniorRedeem string `toml:"JuniorRedeem" yaml:"junior_redeem"`
	JuniorSupply string `toml:"JuniorSupply" yaml:"junior_supply"`
	SeniorSupply string `toml:"SeniorSupply" yaml:"senior_supply"`
}

// Registry is the full set of pools loaded from the registry file.
type Registry struct {
	Pools []Pool `toml:"Pool"`
}

// Lookup returns the pool with the given id.
func (r *Registry) Lookup(id string) (Pool, bool) {
	if r == nil {
		return Pool{}, false
	}
	for _, pool := range r.Pools {
		if pool.ID == id {
			return pool, true
		}
	}
	return Pool{}, false
}
