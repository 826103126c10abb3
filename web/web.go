// Package web embeds the page templates and static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html static/*
var embeddedFS embed.FS

// Templates parses the page templates. They are compiled into the binary,
// so a parse failure is a build defect.
func Templates() *template.Template {
	return template.Must(template.ParseFS(embeddedFS, "templates/*.html"))
}

func Static() http.FileSystem {
	sub, err := fs.Sub(embeddedFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
