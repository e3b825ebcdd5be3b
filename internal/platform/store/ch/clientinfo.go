package ch

import (
	"os"
	"runtime"
	"strings"

	"visawh/internal/core/version"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// BuildClientInfo names this process in system.query_log; role is "build" or "publish"
func BuildClientInfo(role, tag string) clickhouse.ClientInfo {
	bi := version.Info()
	if tag == "" {
		tag = bi.Version
	}
	host, _ := os.Hostname()

	info := clickhouse.ClientInfo{}
	for _, p := range [][2]string{
		{"visawh", tag},
		{"role", role},
		{"go", runtime.Version()},
		{"commit", bi.Commit},
		{"host", host},
	} {
		info.Products = append(info.Products, struct{ Name, Version string }{p[0], strings.TrimSpace(p[1])})
	}
	return info
}
