package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS returns a middleware allowing browser calls from origins.
// An empty list or a "*" entry allows every origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	if allowAll {
		return cors.AllowAll().Handler
	}

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler
}
