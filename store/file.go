package store

import (
	"mime"
	"path/filepath"
)

func contentTypeOf(key string) string {
	return mime.TypeByExtension(filepath.Ext(key))
}
