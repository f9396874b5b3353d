package middleware

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// Compress gzips responses for clients that accept it. Responses smaller
// than gzhttp.DefaultMinSize are sent as is.
//
//	app := routerpc.NewApp().WithMiddleware(middleware.Compress)
func Compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

// CompressMinSize is like Compress with an explicit size threshold in bytes.
func CompressMinSize(size int) (func(http.Handler) http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(size))
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler { return wrap(next) }, nil
}
