package server

import (
	"net/http"
	"os"
	"path"

	"github.com/spf13/afero"
)

// staticHandler serves files from fsys. Without browse, directories that have no
// index.html answer 404 instead of a listing.
func staticHandler(fsys afero.Fs, browse bool) http.Handler {
	var root http.FileSystem = afero.NewHttpFs(fsys).Dir("/")
	if !browse {
		root = noListing{root}
	}
	return http.FileServer(root)
}

type noListing struct {
	http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		index, err := n.FileSystem.Open(path.Join(name, "index.html"))
		if err != nil {
			f.Close()
			return nil, os.ErrNotExist
		}
		index.Close()
	}
	return f, nil
}
