package app

import (
	"log"
	"mime"
)

// Minimal container images ship without /etc/mime.types; the embedded
// stylesheet must still be served as text/css.
func init() {
	if mime.TypeByExtension(".css") != "" {
		return
	}
	if err := mime.AddExtensionType(".css", "text/css; charset=utf-8"); err != nil {
		log.Printf("app: register css mime type: %v", err)
	}
}
