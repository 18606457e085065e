// Package configs provides embedded configuration templates for addresolve.
//
// Templates are embedded at build time so 'addresolve config init' works
// from any distribution (source build, binary release).
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. User config (~/.config/addresolve/config.yaml)
//  3. Project config (.addresolve.yaml)
//  4. Environment variables (ADDRESOLVE_*)
package configs

import _ "embed"

// UserConfigTemplate is the template written by 'addresolve config init'.
//
//go:embed config.example.yaml
var UserConfigTemplate string
