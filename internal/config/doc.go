// Package config provides configuration parsing for roomctl.
//
// The configuration is stored in roomctl.json (JSON with comments and
// trailing commas) or roomctl.yaml at the project root. This package
// handles loading, saving, and validating configuration.
//
// # Configuration File Structure
//
//	{
//	  // Room service endpoint and the room to join.
//	  "url": "wss://rooms.example.com/ws",
//	  "room": "lobby",
//	  "resource": "roomctl",
//	  "callTimeout": "10s",
//	  "http": {
//	    "addr": "127.0.0.1:7070",
//	    "readOnly": true
//	  },
//	  "archive": {
//	    "bucket": "room-snapshots",
//	    "prefix": "rooms/",
//	    "region": "eu-west-1",
//	    "interval": "5s"
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  }
//	}
//
// The same keys are used in roomctl.yaml.
//
// # Environment
//
// ApplyEnv overrides file values from ROOMCTL_URL, ROOMCTL_ROOM,
// ROOMCTL_RESOURCE and ROOMCTL_LOG_LEVEL.
//
// # Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
