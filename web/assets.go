// Package web embeds the browser viewer served by the interface server's web
// listener.
//
// The page speaks the same packet protocol as native viewers, one packet per
// binary websocket message. During development a web/dist directory on disk
// takes precedence over the embedded copy so the page can be edited without
// rebuilding.
package web

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed dist/*
var assets embed.FS

// GetAssets returns the viewer page files. If devPath (default ./web/dist)
// is a directory it is served live; otherwise the embedded files are used.
func GetAssets(devPath string) fs.FS {
	if devPath == "" {
		devPath = "./web/dist"
	}
	if stat, err := os.Stat(devPath); err == nil && stat.IsDir() {
		return os.DirFS(devPath)
	}
	return Embedded()
}

// GetAssetsWithBase looks for the development directory under baseDir.
func GetAssetsWithBase(baseDir string) fs.FS {
	return GetAssets(filepath.Join(baseDir, "web", "dist"))
}

// Embedded returns the files compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(assets, "dist")
	if err != nil {
		panic("failed to access embedded web assets: " + err.Error())
	}
	return sub
}
