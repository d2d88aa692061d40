// Package config loads niolink settings from YAML files.
//
// A file looks like:
//
//	transport:
//	  selectors: 2
//	  strategy: worker
//	  workers: 8
//	  queue_size: 1024
//	  reuse_address: false
//	  connection_timeout: 5s
//	logging:
//	  level: info
//	  event_log: /var/log/niolink/events.nlog
//
// Missing fields keep the values from Default.
package config
