// Package marshal defines the marshalling function table that sits between
// proxies and native records.
//
// A Table is a black box keyed by opaque handles. Proxies never see record
// memory: they pass their handle, the class they believe it has, and a field
// or list name, and the table performs the operation natively.
//
// # Schema
//
// Classes form a single-inheritance hierarchy. Because inheritance is single,
// a record's handle is valid for every class on its chain, so Upcast returns
// the same handle value and DynamicCast is a class check:
//
//	Storable
//	└── Displayable         gui_label
//	    ├── ServerInfo      server_id, server_type
//	    └── ContactNym      nym_type, nym_id, public_key, memo, servers[]ServerInfo
//
// Field types are WIT types. Only string is currently supported.
//
// # Logging
//
// Wrap any table with Logged to trace calls through zap:
//
//	t := marshal.Logged(heap.New(nil), logger)
package marshal
