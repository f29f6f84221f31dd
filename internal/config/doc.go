// Package config loads provider settings and feature type mappings.
//
// Settings (database, path grammar, query defaults, logging) are read with
// cleanenv from YAML with FEATURESTREAM_* environment overrides. Feature
// types are declared in CUE as lists of annotated paths and compiled into
// schema instance containers.
package config
