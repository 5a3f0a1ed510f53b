package cmd

import "github.com/spf13/viper"

// SetDefaults seeds v with sane defaults for every transcoder-worker
// setting, so a deployment with no config file and no environment
// overrides still starts (against an in-memory blob store, unusable for
// production but fine for a smoke test).
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rendition.name", "source")
	v.SetDefault("rendition.kind", "video") // "video" or "audio"

	v.SetDefault("eventbus.redis_addr", "localhost:6379")
	v.SetDefault("eventbus.redis_password", "")
	v.SetDefault("eventbus.redis_db", 0)

	v.SetDefault("metadata.redis_addr", "localhost:6379")
	v.SetDefault("metadata.redis_password", "")
	v.SetDefault("metadata.redis_db", 0)

	v.SetDefault("blobstore.backend", "memory") // "memory" or "azure"
	v.SetDefault("blobstore.azure_account_url", "")
	v.SetDefault("blobstore.azure_container", "media")
}
