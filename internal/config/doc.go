// Package config loads pillarclient configuration from YAML or TOML.
//
// # Overview
//
// Load picks the format from the file extension (.toml for TOML, anything
// else YAML), expands ${VAR} references from the environment, parses
// duration strings and validates the result. Missing optional values get
// defaults.
//
// # Example
//
//	collection:
//	  id: books
//	  client_id: ingest-1
//	  contributors: [pillar-a, pillar-b]
//
//	timeouts:
//	  identify: "10s"
//	  operation: "1m"
//	  overrides:
//	    GetFile:
//	      operation: "10m"
//
//	mediator:
//	  conversation_timeout: "1h"
//	  dedupe_ttl: "5m"
//
//	bus:
//	  address: "localhost:50061"
//	  publish_rate: 200
//
//	security:
//	  secret: "${PILLARCLIENT_SECRET}"
//	  sign_messages: true
//
//	ledger:
//	  path: "./ledger.db"
//
//	logging:
//	  level: debug
//	  format: json
//
//	pillars:
//	  - id: pillar-a
//	    delay: "50ms"
//	  - id: pillar-b
//	    time_to_deliver: "2s"
//
// Timeouts of zero or less disable a phase timer. Override entries inherit
// whichever phase they leave out from the defaults.
package config
