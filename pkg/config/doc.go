// Package config loads favsync settings.
//
// Sources are layered, later ones winning:
//
//	defaults < config file (YAML, or TOML when the name ends in .toml)
//	         < .env < FAVSYNC_* environment < command line flags
//
// Example:
//
//	cfg, err := config.Load("", map[string]interface{}{
//	    "output":    "./mirror",
//	    "favorites": false,
//	    "album-ids": []string{"123", "456"},
//	})
package config
