package cmd

import "github.com/spf13/viper"

// SetDefaults seeds v with sane defaults for every edge-server setting, so
// a deployment with no config file and no environment overrides still
// starts (against an in-memory blob store, unusable for production but
// fine for a smoke test).
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9091")

	v.SetDefault("database.dsn", "postgres://localhost:5432/edge?sslmode=disable")

	v.SetDefault("metadata.redis_addr", "localhost:6379")
	v.SetDefault("metadata.redis_password", "")
	v.SetDefault("metadata.redis_db", 0)

	v.SetDefault("blobstore.backend", "memory") // "memory" or "azure"
	v.SetDefault("blobstore.azure_account_url", "")
	v.SetDefault("blobstore.azure_container", "media")

	v.SetDefault("signing.session_secret", "")
	v.SetDefault("signing.room_token_keys", map[string]string{})
}
