/*
Package config loads filebox settings.

Sources, lowest precedence first:

  - built-in defaults (Default)
  - a YAML file passed to Load
  - FILEBOX_* environment variables, e.g. FILEBOX_DATA_DIR or
    FILEBOX_STORE_MAX_ATTEMPTS

Command line flags are applied on top by the CLI.

Example file:

	data_dir: /var/lib/filebox
	store:
	  open_timeout: 1s
	  max_attempts: 3
	  retry_backoff: 100ms
	  watch_releases: true
	log:
	  level: info
	  json: false
	metrics:
	  addr: 127.0.0.1:9090
	  interval: 30s
*/
package config
