package config

// Registry carries the name registry constants. Amounts are decimal wei
// strings so they survive TOML without precision loss.
type Registry struct {
	MinCommitmentAgeSeconds int64  `toml:"MinCommitmentAgeSeconds"`
	MaxCommitmentAgeSeconds int64  `toml:"MaxCommitmentAgeSeconds"`
	MinDurationMultiplier   uint64 `toml:"MinDurationMultiplier"`
	FeePerSymbolWei         string `toml:"FeePerSymbolWei"`
	LockAmountWei           string `toml:"LockAmountWei"`
	DurationUnitSeconds     int64  `toml:"DurationUnitSeconds"`
}

// RPC controls the JSON-RPC surface.
type RPC struct {
	// AuthToken is the static bearer token required for mutating methods.
	AuthToken         string   `toml:"AuthToken"`
	JWTSecret         string   `toml:"JWTSecret"`
	JWTIssuer         string   `toml:"JWTIssuer"`
	RequestsPerMinute int      `toml:"RequestsPerMinute"`
	Burst             int      `toml:"Burst"`
	AllowedOrigins    []string `toml:"AllowedOrigins"`
	EventBacklog      int      `toml:"EventBacklog"`
}

// Indexer selects the history database. Driver is "sqlite" or "postgres".
type Indexer struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Webhook configures outbound notification delivery. An empty URL disables it.
type Webhook struct {
	URL        string `toml:"URL"`
	Secret     string `toml:"Secret"`
	MaxRetries int    `toml:"MaxRetries"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}
