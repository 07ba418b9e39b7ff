package web

import "embed"

// Templates holds the login, loading and dashboard pages with their
// shared layout and partials.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static holds the assets served under /static.
//
//go:embed static/**/*
var Static embed.FS
