package controllers

import (
	"net/http"

	"github.com/torresline/eventgate/api/middleware"
	"github.com/torresline/eventgate/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if client := middleware.ClientIDFromContext(r.Context()); client != nil {
			payload["client_id"] = client.String()
		}
		responses.WriteSuccess(w, payload)
	}
}
