package web

import (
	"embed"
	"io/fs"
)

// staticFS embeds the browser client.
//
//go:embed static/*
var staticFS embed.FS

// Static returns the browser client rooted at its own directory.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
