package config

// 通过 -ldflags 注入
var (
	Version    = "dev"
	CommitHash = "n/a"
)
