package web

import "embed"

// FS contains the assets the relay serves itself, independent of any static
// directory. The patterns are relative to this file's directory (the 'web' directory).
//
//go:embed static/*
var FS embed.FS

// ClientScript is the path of the browser helper within FS.
const ClientScript = "static/relay-client.js"
