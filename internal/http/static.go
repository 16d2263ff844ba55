package http

import (
	"embed"
	"io/fs"
	stdhttp "net/http"

	"github.com/rotisserie/eris"
)

//go:embed static/*
var staticFiles embed.FS

func newStaticAssetHandler() (stdhttp.Handler, error) {
	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, eris.Wrap(err, "preparing static assets filesystem")
	}

	return stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.FS(assets))), nil
}

func faviconHandler(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	stdhttp.Redirect(w, r, "/static/favicon.svg", stdhttp.StatusMovedPermanently)
}

func (s *Server) registerStaticRoutes() error {
	handler, err := newStaticAssetHandler()
	if err != nil {
		return err
	}

	s.mux.Handle("GET /static/", handler)
	s.mux.HandleFunc("GET /favicon.ico", faviconHandler)
	return nil
}
