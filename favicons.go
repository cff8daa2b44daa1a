/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/julienschmidt/httprouter"
)

//go:embed favicons/*
var favicons embed.FS

func getFavicon(cfg *Config) string {
	return fmt.Sprintf(`<link rel="icon" type="image/svg+xml" href="%s/favicon.svg">
	<meta name="theme-color" content="#0f172a">`, cfg.prefix)
}

func serveFavicons(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := path.Base(r.URL.Path)

		data, err := favicons.ReadFile("favicons/" + fname)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		if path.Ext(fname) == ".svg" {
			w.Header().Set("Content-Type", "image/svg+xml")
		}
		cacheFor(w, 24*time.Hour)
		securityHeaders(cfg, w)

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}
