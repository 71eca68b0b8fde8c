package router

import (
	"net/http"

	handlers "notehub/handler"
	"notehub/internal/directory"
	"notehub/internal/store"
	"notehub/middleware"
	"notehub/socket"
)

func Setup(svc *directory.Service, hub *socket.Hub, localUser store.User) http.Handler {
	mux := http.NewServeMux()
	identify := middleware.Identity(localUser)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r, middleware.UserFrom(r.Context()))
	})
	mux.Handle("/ws", identify(wsHandler))

	// REST API
	docHandler := &handlers.DocumentHandler{Service: svc}

	mux.Handle("/api/documents/create", identify(http.HandlerFunc(docHandler.CreateDocument)))
	mux.Handle("/api/documents/delete", identify(http.HandlerFunc(docHandler.DeleteDocument)))
	mux.Handle("/api/documents/update", identify(http.HandlerFunc(docHandler.UpdateDocument)))
	mux.Handle("/api/documents/visibility", identify(http.HandlerFunc(docHandler.ToggleVisibility)))
	mux.Handle("/api/documents/save", identify(http.HandlerFunc(docHandler.SaveDocument)))
	mux.Handle("/api/documents/get", identify(http.HandlerFunc(docHandler.GetDocument)))
	mux.Handle("/api/documents", identify(http.HandlerFunc(docHandler.GetDocuments)))

	return middleware.CORSMiddleware(mux)
}
